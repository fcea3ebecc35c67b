// Package report records the symbols that could not be fetched in a run.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"marketloader/internal/coordinator"
	"marketloader/internal/models"
)

// Publisher receives the run summary once a run is reported.
// *events.Producer satisfies it.
type Publisher interface {
	PublishRunCompleted(ctx context.Context, event models.RunEvent) error
}

// Reporter writes the failure log and publishes run events.
type Reporter struct {
	path      string
	logger    *slog.Logger
	publisher Publisher
}

// New creates a Reporter that writes failures to path. publisher may be nil.
func New(path string, logger *slog.Logger, publisher Publisher) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		path:      path,
		logger:    logger,
		publisher: publisher,
	}
}

// Report persists the terminal failure set of summary, one symbol per line,
// replacing any previous log. Nothing is written when every symbol
// succeeded. The run event is published regardless of failures.
func (r *Reporter) Report(ctx context.Context, summary *coordinator.Summary) error {
	if summary == nil {
		return nil
	}

	var errs []error
	if len(summary.Failed) > 0 {
		if err := r.writeFailures(summary.Failed); err != nil {
			errs = append(errs, err)
		} else {
			r.logger.Warn("symbols failed after all retry rounds",
				"failed_count", len(summary.Failed),
				"path", r.path,
			)
		}
	}

	if r.publisher != nil {
		if err := r.publisher.PublishRunCompleted(ctx, toEvent(summary)); err != nil {
			errs = append(errs, fmt.Errorf("failed to publish run event: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *Reporter) writeFailures(symbols []string) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strings.Join(symbols, "\n") + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("failed to replace report: %w", err)
	}
	return nil
}

func toEvent(s *coordinator.Summary) models.RunEvent {
	kinds := make([]string, len(s.Kinds))
	for i, k := range s.Kinds {
		kinds[i] = string(k)
	}
	return models.RunEvent{
		RunID:      s.RunID,
		EventType:  models.EventRunCompleted,
		Kinds:      kinds,
		Succeeded:  len(s.Succeeded),
		Failed:     append([]string{}, s.Failed...),
		Rounds:     s.Rounds,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
}
