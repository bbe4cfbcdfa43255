package manager

import (
	"context"
	"errors"
	"time"

	"github.com/franksops/gridq/engine"
	"github.com/franksops/gridq/logging"
	"github.com/franksops/gridq/store"
)

// Start launches the background worker. It drains the queue whenever it
// is woken by an enqueue or a resume, until ctx ends or Close is called.
// Calling Start more than once has no effect.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		m.mu.Lock()
		m.cancel = cancel
		m.workerDone = make(chan struct{})
		m.mu.Unlock()

		go m.work(ctx)
		m.kick()
	})
}

func (m *Manager) work(ctx context.Context) {
	defer close(m.workerDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		}
		if err := m.ProcessNextInQueueIfIdle(ctx); err != nil && ctx.Err() == nil {
			m.log.Error().Err(err).Msg("worker step failed")
		}
	}
}

// kick wakes the worker without blocking. One pending wake-up is enough,
// the worker drains the whole queue each time.
func (m *Manager) kick() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// ProcessNextInQueueIfIdle runs ENQUEUED records one after another, oldest
// first, until the queue is empty or a pause is requested. It returns at
// once if a record is already executing or the manager is paused. It
// blocks for as long as the records take.
func (m *Manager) ProcessNextInQueueIfIdle(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := m.claim()
		if err != nil {
			return err
		}
		if rec == nil {
			return nil
		}
		m.run(ctx, rec)
	}
}

// claim moves the next eligible record to PROCESSING and marks the worker
// busy, or returns nil when there is nothing to start. The worker is
// reserved before the store is read, so the queue never shows a claimed
// record while the worker reports IDLE.
func (m *Manager) claim() (*store.Record, error) {
	m.mu.Lock()
	if m.closed || m.busy || m.paused {
		m.mu.Unlock()
		return nil, nil
	}
	m.busy = true
	m.inflight.Add(1)
	m.mu.Unlock()

	rec, err := m.store.NextEligible()
	if err == nil && rec != nil {
		rec.State = store.StateProcessing
		rec.TransferStart = m.now()
		err = m.store.Update(rec)
	}
	if err != nil || rec == nil {
		m.mu.Lock()
		m.busy = false
		if err != nil {
			m.errStatus = m.errStatus.raise(Error)
		}
		m.mu.Unlock()
		m.inflight.Done()
		return nil, err
	}
	return rec, nil
}

func (m *Manager) run(ctx context.Context, rec *store.Record) {
	defer func() {
		m.mu.Lock()
		m.busy = false
		m.mu.Unlock()
		m.inflight.Done()
	}()

	log := m.log.With().Str("record", rec.ID).Str("kind", string(rec.Kind)).Logger()
	log.Info().
		Str("source", rec.Source()).
		Str("target", rec.Target()).
		Str("checkpoint", rec.LastSuccessfulPath).
		Msg("processing transfer")

	notify := func(ev engine.StatusEvent) {
		if ev.State == engine.EventError {
			m.NotifyWarningCondition()
		}
		m.emit(ev)
	}

	out, err := m.exec.Execute(logging.WithLogger(ctx, log), rec, notify)
	if err != nil && ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		log.Warn().Str("checkpoint", rec.LastSuccessfulPath).Msg("transfer interrupted, it resumes on next start")
		return
	}

	if err != nil {
		log.Error().Err(err).Msg("transfer aborted")
		if rec.State != store.StateError {
			rec.State = store.StateError
			rec.Status = store.StatusError
			rec.ErrorMessage = err.Error()
			rec.TransferEnd = m.now()
			if uerr := m.store.Update(rec); uerr != nil {
				log.Error().Err(uerr).Msg("failed to record transfer failure")
			}
		}
	}

	switch {
	case rec.State == store.StateError:
		m.NotifyErrorCondition()
	case out.CheckpointMissed || rec.Status == store.StatusWarning:
		m.NotifyWarningCondition()
	}

	m.emit(terminalEvent(rec, out, err, m.now()))
}

func terminalEvent(rec *store.Record, out engine.Outcome, err error, now time.Time) engine.StatusEvent {
	ev := engine.StatusEvent{
		RecordID:   rec.ID,
		Kind:       rec.Kind,
		Scope:      engine.ScopeTransfer,
		State:      engine.EventSuccess,
		SourcePath: rec.Source(),
		TargetPath: rec.Target(),
		Resource:   rec.Resource,
		ItemCount:  out.Total,
		Time:       now,
	}
	if rec.State != store.StateComplete {
		ev.State = engine.EventError
		ev.Err = err
		if ev.Err == nil {
			ev.Err = errors.New(rec.ErrorMessage)
		}
	}
	return ev
}

// Close stops the worker and waits for any executing record to return.
// A record interrupted this way stays PROCESSING and is recovered by the
// next manager over the same store. Listeners receive every event emitted
// before Close returns. The store is not closed.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		cancel, done := m.cancel, m.workerDone
		m.mu.Unlock()

		if cancel != nil {
			cancel()
			<-done
		}
		m.inflight.Wait()
		close(m.events)
		<-m.dispatchDone
	})
	return nil
}
