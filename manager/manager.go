package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/franksops/gridq/account"
	"github.com/franksops/gridq/engine"
	"github.com/franksops/gridq/store"
)

// ErrInvalidArgument is returned for requests that can never be queued or applied.
var ErrInvalidArgument = errors.New("invalid argument")

// DefaultEventBuffer is the capacity of the listener event channel.
const DefaultEventBuffer = 256

// Executor runs one PROCESSING record to its end. engine.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, rec *store.Record, notify engine.EventSink) (engine.Outcome, error)
}

// Manager owns the transfer queue: it accepts requests, runs them one at a
// time in enqueue order and reports their progress to listeners.
type Manager struct {
	store store.QueueStore
	exec  Executor
	log   zerolog.Logger
	now   func() time.Time

	// mu guards the flags below and is never held across store I/O.
	mu        sync.Mutex
	busy      bool
	paused    bool
	closed    bool
	errStatus ErrorStatus
	// inflight counts records claimed by any caller of ProcessNextInQueueIfIdle.
	inflight sync.WaitGroup

	// queueMu serializes the read-check-write of finished records by
	// Requeue and Purge.
	queueMu sync.Mutex

	listenersMu  sync.RWMutex
	listeners    []Listener
	events       chan engine.StatusEvent
	dispatchDone chan struct{}

	wake       chan struct{}
	cancel     context.CancelFunc
	workerDone chan struct{}
	startOnce  sync.Once
	closeOnce  sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithEventBuffer sets the capacity of the listener event channel.
func WithEventBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.events = make(chan engine.StatusEvent, n)
		}
	}
}

// New creates a manager over st. Records left PROCESSING by a previous
// process are put back to ENQUEUED with their checkpoint intact before New
// returns.
func New(st store.QueueStore, exec Executor, opts ...Option) (*Manager, error) {
	m := &Manager{
		store:        st,
		exec:         exec,
		log:          zerolog.Nop(),
		now:          time.Now,
		errStatus:    OK,
		events:       make(chan engine.StatusEvent, DefaultEventBuffer),
		dispatchDone: make(chan struct{}),
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.recover(); err != nil {
		return nil, err
	}

	go m.dispatch()
	return m, nil
}

func (m *Manager) recover() error {
	stale, err := m.store.RecordsInState(store.StateProcessing)
	if err != nil {
		return fmt.Errorf("failed to scan for interrupted transfers: %w", err)
	}
	for _, rec := range stale {
		rec.State = store.StateEnqueued
		if err := m.store.Update(rec); err != nil {
			return fmt.Errorf("failed to requeue interrupted transfer %s: %w", rec.ID, err)
		}
		m.log.Info().
			Str("record", rec.ID).
			Str("checkpoint", rec.LastSuccessfulPath).
			Msg("requeued transfer interrupted by previous shutdown")
	}
	return nil
}

// EnqueuePut queues an upload of localPath to remotePath on resource, or the
// account's default resource when resource is empty.
func (m *Manager) EnqueuePut(ctx context.Context, localPath, remotePath, resource string, acct account.Account) (*store.Record, error) {
	if err := requirePaths(localPath, remotePath); err != nil {
		return nil, err
	}
	return m.enqueue(ctx, &store.Record{
		Kind:       store.KindPut,
		LocalPath:  localPath,
		RemotePath: remotePath,
		Resource:   resource,
		Account:    acct,
	})
}

// EnqueueGet queues a download of remotePath to localPath.
func (m *Manager) EnqueueGet(ctx context.Context, remotePath, localPath, resource string, acct account.Account) (*store.Record, error) {
	if err := requirePaths(localPath, remotePath); err != nil {
		return nil, err
	}
	return m.enqueue(ctx, &store.Record{
		Kind:       store.KindGet,
		LocalPath:  localPath,
		RemotePath: remotePath,
		Resource:   resource,
		Account:    acct,
	})
}

// EnqueueReplicate queues a replication of remotePath from the default
// resource onto resource.
func (m *Manager) EnqueueReplicate(ctx context.Context, remotePath, resource string, acct account.Account) (*store.Record, error) {
	if strings.TrimSpace(remotePath) == "" {
		return nil, fmt.Errorf("%w: remote path is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(resource) == "" {
		return nil, fmt.Errorf("%w: replication needs a target resource", ErrInvalidArgument)
	}
	return m.enqueue(ctx, &store.Record{
		Kind:       store.KindReplicate,
		RemotePath: remotePath,
		Resource:   resource,
		Account:    acct,
	})
}

// EnqueueCopy queues a remote to remote copy of sourcePath to targetPath.
// resource selects the target resource.
func (m *Manager) EnqueueCopy(ctx context.Context, sourcePath, targetPath, resource string, acct account.Account) (*store.Record, error) {
	if strings.TrimSpace(sourcePath) == "" || strings.TrimSpace(targetPath) == "" {
		return nil, fmt.Errorf("%w: source and target paths are required", ErrInvalidArgument)
	}
	return m.enqueue(ctx, &store.Record{
		Kind:       store.KindCopy,
		RemotePath: sourcePath,
		TargetPath: targetPath,
		Resource:   resource,
		Account:    acct,
	})
}

func requirePaths(localPath, remotePath string) error {
	if strings.TrimSpace(localPath) == "" {
		return fmt.Errorf("%w: local path is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(remotePath) == "" {
		return fmt.Errorf("%w: remote path is required", ErrInvalidArgument)
	}
	return nil
}

func (m *Manager) enqueue(ctx context.Context, rec *store.Record) (*store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.store.Enqueue(rec); err != nil {
		return nil, fmt.Errorf("failed to enqueue %s transfer: %w", rec.Kind, err)
	}
	m.log.Info().
		Str("record", rec.ID).
		Str("kind", string(rec.Kind)).
		Str("source", rec.Source()).
		Str("target", rec.Target()).
		Object("account", rec.Account).
		Msg("transfer enqueued")

	// The wake-up stays pending while the worker is busy, so a record
	// enqueued during a claim of an empty queue is still picked up.
	m.kick()
	return rec, nil
}

// Pause stops the worker from starting new records. A record already
// executing runs to its end.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.paused {
		m.paused = true
		m.log.Info().Msg("queue paused")
	}
}

// Resume lifts a pause and lets the worker look for work. Resuming a
// manager that is not paused does nothing.
func (m *Manager) Resume() {
	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		return
	}
	m.paused = false
	m.mu.Unlock()

	m.log.Info().Msg("queue resumed")
	m.kick()
}

// IsPaused reports whether a pause is in effect, even while the last
// record started before it is still executing.
func (m *Manager) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// RunningStatus reports PROCESSING while a record executes, PAUSED when
// idle under a pause, and IDLE otherwise.
func (m *Manager) RunningStatus() RunningStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.busy:
		return Processing
	case m.paused:
		return Paused
	}
	return Idle
}

// ErrorStatus reports the most severe condition raised so far.
func (m *Manager) ErrorStatus() ErrorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errStatus
}

// NotifyErrorCondition raises the error status to ERROR.
func (m *Manager) NotifyErrorCondition() {
	m.mu.Lock()
	m.errStatus = m.errStatus.raise(Error)
	m.mu.Unlock()
}

// NotifyWarningCondition raises the error status to WARNING unless it is
// already ERROR.
func (m *Manager) NotifyWarningCondition() {
	m.mu.Lock()
	m.errStatus = m.errStatus.raise(Warning)
	m.mu.Unlock()
}
