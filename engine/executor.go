package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/franksops/gridq/logging"
	"github.com/franksops/gridq/store"
)

// Outcome summarizes one execution of a record.
type Outcome struct {
	Transferred int
	Failed      int
	// Total is the number of items in the source, including items skipped
	// on resume.
	Total            int
	CheckpointMissed bool
}

// Executor carries a PROCESSING record through its Mover, persisting the
// checkpoint after each item and closing the record as COMPLETE or ERROR.
type Executor struct {
	store     store.QueueStore
	mover     Mover
	maxErrors int
	log       zerolog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxItemErrors stops a record after n failed items. n <= 0 means no limit.
func WithMaxItemErrors(n int) ExecutorOption {
	return func(e *Executor) { e.maxErrors = n }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l zerolog.Logger) ExecutorOption {
	return func(e *Executor) { e.log = l }
}

// NewExecutor creates an executor writing progress to st.
func NewExecutor(st store.QueueStore, mover Mover, opts ...ExecutorOption) *Executor {
	e := &Executor{store: st, mover: mover, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs rec, which must be PROCESSING. Item events are passed to
// notify, if set, after their effect on rec has been persisted.
//
// A nil error means rec reached a terminal state: COMPLETE, or ERROR because
// items failed. A non-nil error is either a fatal failure, with rec left in
// ERROR where the store allows it, or a context cancellation, with rec left
// PROCESSING so that the next startup resumes it.
func (e *Executor) Execute(ctx context.Context, rec *store.Record, notify EventSink) (Outcome, error) {
	var out Outcome
	if rec.State != store.StateProcessing {
		return out, fmt.Errorf("record %s is %s, expected %s", rec.ID, rec.State, store.StateProcessing)
	}

	log := recordLogger(ctx, e.log, rec.ID, rec.Kind)
	cb := NewControlBlock(rec.LastSuccessfulPath, e.maxErrors)
	tracker := NewRecordTracker(e.store, rec)

	sink := func(ev StatusEvent) {
		ev.RecordID = rec.ID
		ev.Kind = rec.Kind
		if ev.ItemCount > out.Total {
			out.Total = ev.ItemCount
		}
		switch ev.State {
		case EventSuccess:
			out.Transferred++
			if err := tracker.Advance(ev.SourcePath); err != nil {
				log.Error().Err(err).Str("path", ev.SourcePath).Msg("failed to persist checkpoint")
				cb.Cancel()
			}
		case EventError:
			out.Failed++
			log.Warn().Err(ev.Err).Msg("item failed")
			if err := tracker.ItemFailed(ev.Err); err != nil {
				log.Error().Err(err).Msg("failed to persist item error")
				cb.Cancel()
			} else if cb.ReportError() {
				log.Warn().Int("errors", cb.ErrorCount()).Msg("item error limit reached, stopping record")
			}
		}
		if notify != nil {
			notify(ev)
		}
	}

	err := e.mover.Execute(ctx, RequestFor(rec), cb, sink)
	out.CheckpointMissed = cb.CheckpointMissed()
	if n := cb.ItemCount(); n > out.Total {
		out.Total = n
	}

	if storeErr := tracker.Err(); storeErr != nil {
		_ = tracker.MarkFailed(storeErr)
		return out, storeErr
	}

	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		log.Info().Str("checkpoint", rec.LastSuccessfulPath).Msg("interrupted, record left for recovery")
		return out, err
	}

	var finalErr error
	switch {
	case err == nil && rec.ItemErrors == 0:
		finalErr = tracker.MarkComplete(out.CheckpointMissed)
	case err == nil, errors.Is(err, ErrCancelled):
		// The last item error message stays on the record.
		finalErr = tracker.MarkFailed(nil)
	default:
		if perr := tracker.MarkFailed(err); perr != nil {
			log.Error().Err(perr).Msg("failed to persist record failure")
		}
		return out, err
	}
	if finalErr != nil {
		return out, finalErr
	}

	log.Info().
		Str("state", string(rec.State)).
		Int("transferred", out.Transferred).
		Int("failed", out.Failed).
		Msg("record finished")
	return out, nil
}

// recordLogger returns the logger carried by ctx, which the manager scopes to
// the record, or fallback annotated with the record.
func recordLogger(ctx context.Context, fallback zerolog.Logger, id string, kind store.Kind) zerolog.Logger {
	if l := logging.FromContext(ctx); l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return fallback.With().Str("record", id).Str("kind", string(kind)).Logger()
}
