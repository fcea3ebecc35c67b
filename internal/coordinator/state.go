package coordinator

import "sort"

// State is the orchestration phase of a run.
type State int

const (
	StatePending State = iota
	StateBatchProcessing
	StateRetryRound
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateBatchProcessing:
		return "batch_processing"
	case StateRetryRound:
		return "retry_round"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// runState is the transient bookkeeping of one run.
type runState struct {
	original  []string
	queue     []string
	succeeded map[string]bool
	round     int // retry rounds started; 0 during the initial pass
	batches   int
	rows      int
}

func newRun(symbols []string) *runState {
	return &runState{
		original:  uniqueSorted(symbols),
		succeeded: make(map[string]bool),
	}
}

// advance decides the state after a finished pass. Symbols that failed this
// pass and never succeeded are retried while retry rounds remain.
func (r *runState) advance(failed []string, maxRounds int) State {
	candidates := r.retryCandidates(failed)
	if len(candidates) == 0 || r.round >= maxRounds {
		r.queue = nil
		return StateDone
	}
	r.round++
	r.queue = candidates
	return StateRetryRound
}

// retryCandidates returns failed − succeeded, sorted and de-duplicated.
func (r *runState) retryCandidates(failed []string) []string {
	var out []string
	for _, s := range uniqueSorted(failed) {
		if !r.succeeded[s] {
			out = append(out, s)
		}
	}
	return out
}

func (r *runState) succeededList() []string {
	out := make([]string, 0, len(r.succeeded))
	for s := range r.succeeded {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// finalFailures returns original − succeeded in sorted order.
func (r *runState) finalFailures() []string {
	out := make([]string, 0)
	for _, s := range r.original {
		if !r.succeeded[s] {
			out = append(out, s)
		}
	}
	return out
}
