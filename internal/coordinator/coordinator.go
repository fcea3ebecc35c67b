package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"marketloader/internal/fetcher"
	"marketloader/internal/retry"
	"marketloader/internal/storage"
)

// SymbolFetcher fetches every requested kind for one symbol.
// *fetcher.Dispatcher satisfies it.
type SymbolFetcher interface {
	Fetch(ctx context.Context, symbol string, kinds []fetcher.Kind) (fetcher.Result, error)
}

// Persister durably writes one symbol's result. *storage.Store satisfies it.
type Persister interface {
	Persist(ctx context.Context, symbol string, res fetcher.Result) (storage.WriteStats, error)
}

// Config holds orchestration settings.
type Config struct {
	BatchSize  int           // symbols per batch (default: 30)
	Workers    int           // concurrent symbols per batch (default: 15)
	MaxRounds  int           // retry rounds after the initial pass (default: 3)
	BatchDelay time.Duration // pause between consecutive batches (default: 1s)
	Kinds      []fetcher.Kind
}

// DefaultConfig returns the default orchestration settings for kinds.
func DefaultConfig(kinds ...fetcher.Kind) Config {
	return Config{
		BatchSize:  30,
		Workers:    15,
		MaxRounds:  3,
		BatchDelay: time.Second,
		Kinds:      kinds,
	}
}

// Summary is the outcome of one run.
type Summary struct {
	RunID       uuid.UUID
	Kinds       []fetcher.Kind
	Succeeded   []string
	Failed      []string
	Rounds      int
	RowsWritten int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Coordinator runs symbols through fetch and persist in batches, then
// re-attempts failed symbols in bounded retry rounds.
type Coordinator struct {
	cfg    Config
	fetch  SymbolFetcher
	store  Persister
	policy retry.Policy
	logger *slog.Logger
}

// New creates a Coordinator. A policy without a Retryable func retries
// throttled fetches only.
func New(cfg Config, fetch SymbolFetcher, store Persister, policy retry.Policy, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 30
	}
	if cfg.Workers < 1 {
		cfg.Workers = 15
	}
	if cfg.MaxRounds < 0 {
		cfg.MaxRounds = 0
	}
	if policy.Retryable == nil {
		policy.Retryable = fetcher.IsThrottled
	}
	if policy.Logger == nil {
		policy.Logger = logger
	}
	return &Coordinator{
		cfg:    cfg,
		fetch:  fetch,
		store:  store,
		policy: policy,
		logger: logger,
	}
}

// Run processes symbols until every symbol succeeded or the retry rounds are
// used up. Per-symbol failures never abort the run; they are reported in
// Summary.Failed. If ctx ends, Run stops scheduling work and returns the
// partial summary together with the context error.
func (c *Coordinator) Run(ctx context.Context, symbols []string) (*Summary, error) {
	if len(c.cfg.Kinds) == 0 {
		return nil, fetcher.ErrNoKinds
	}
	for _, k := range c.cfg.Kinds {
		if !k.Valid() {
			return nil, fmt.Errorf("invalid fetch kind %q", k)
		}
	}

	kinds := make([]fetcher.Kind, len(c.cfg.Kinds))
	copy(kinds, c.cfg.Kinds)
	fetcher.SortKinds(kinds)

	run := newRun(symbols)
	summary := &Summary{
		RunID:     uuid.New(),
		Kinds:     kinds,
		StartedAt: time.Now(),
	}

	logger := c.logger.With("run_id", summary.RunID.String())
	if len(run.original) == 0 {
		logger.Info("no symbols to fetch")
		return c.finish(summary, run), nil
	}

	logger.Info("run started",
		"symbols", len(run.original),
		"kinds", kindNames(kinds),
		"batch_size", c.cfg.BatchSize,
		"workers", c.cfg.Workers,
	)

	state := StatePending
	for state != StateDone {
		switch state {
		case StatePending:
			run.queue = run.original
			state = StateBatchProcessing

		case StateBatchProcessing, StateRetryRound:
			summary.Rounds++
			failed, err := c.runRound(ctx, logger, run, kinds)
			if err != nil {
				logger.Warn("run cancelled", "round", run.round, "error", err)
				return c.finish(summary, run), err
			}
			state = run.advance(failed, c.cfg.MaxRounds)
			if state == StateRetryRound {
				logger.Info("starting retry round",
					"round", run.round,
					"max_rounds", c.cfg.MaxRounds,
					"symbols", strings.Join(run.queue, ","),
				)
			}
		}
	}

	c.finish(summary, run)
	logger.Info("run complete",
		"succeeded", len(summary.Succeeded),
		"failed", len(summary.Failed),
		"rounds", summary.Rounds,
		"rows_written", summary.RowsWritten,
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
	)
	return summary, nil
}

func (c *Coordinator) finish(summary *Summary, run *runState) *Summary {
	summary.Succeeded = run.succeededList()
	summary.Failed = run.finalFailures()
	summary.RowsWritten = run.rows
	summary.FinishedAt = time.Now()
	return summary
}

// outcome is one worker's result for one symbol.
type outcome struct {
	symbol string
	rows   int
	err    error
}

// runRound processes run.queue in batches and returns the symbols that failed.
func (c *Coordinator) runRound(ctx context.Context, logger *slog.Logger, run *runState, kinds []fetcher.Kind) ([]string, error) {
	var failed []string

	for start := 0; start < len(run.queue); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(run.queue))
		batch := run.queue[start:end]

		if run.batches > 0 && c.cfg.BatchDelay > 0 {
			if err := sleep(ctx, c.cfg.BatchDelay); err != nil {
				return failed, err
			}
		}
		if err := ctx.Err(); err != nil {
			return failed, err
		}
		run.batches++

		p := pool.NewWithResults[outcome]().WithMaxGoroutines(c.cfg.Workers)
		for _, symbol := range batch {
			p.Go(func() outcome {
				return c.processSymbol(ctx, logger, symbol, kinds)
			})
		}
		results := p.Wait()

		var ok int
		for _, r := range results {
			if r.err != nil {
				failed = append(failed, r.symbol)
				continue
			}
			run.succeeded[r.symbol] = true
			run.rows += r.rows
			ok++
		}

		logger.Info("batch complete",
			"round", run.round,
			"batch", run.batches,
			"symbols", len(batch),
			"succeeded", ok,
			"failed", len(batch)-ok,
		)

		if err := ctx.Err(); err != nil {
			return failed, err
		}
	}
	return failed, nil
}

// processSymbol runs the retry-wrapped fetch and persists the result.
func (c *Coordinator) processSymbol(ctx context.Context, logger *slog.Logger, symbol string, kinds []fetcher.Kind) outcome {
	if err := ctx.Err(); err != nil {
		return outcome{symbol: symbol, err: err}
	}

	res, err := retry.Do(ctx, c.policy, func(ctx context.Context) (fetcher.Result, error) {
		return c.fetch.Fetch(ctx, symbol, kinds)
	})
	if err != nil {
		logger.Warn("symbol fetch failed",
			"symbol", symbol,
			"class", fetcher.Classify(err).String(),
			"error", err,
		)
		return outcome{symbol: symbol, err: err}
	}

	if missing := res.Missing(kinds); len(missing) > 0 {
		logger.Warn("missing or empty data",
			"symbol", symbol,
			"kinds", kindNames(missing),
		)
	}

	stats, err := c.store.Persist(ctx, symbol, res)
	if err != nil {
		logger.Error("failed to persist symbol", "symbol", symbol, "error", err)
		return outcome{symbol: symbol, err: err}
	}

	logger.Debug("symbol stored", "symbol", symbol, "rows", stats.Inserted())
	return outcome{symbol: symbol, rows: stats.Inserted()}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func kindNames(kinds []fetcher.Kind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}

// uniqueSorted trims, de-duplicates and sorts symbols, dropping blanks.
func uniqueSorted(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
