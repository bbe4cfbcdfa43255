package ui

import (
	"sync"
	"time"

	"github.com/franksops/gridq/engine"
	"github.com/franksops/gridq/manager"
	"github.com/franksops/gridq/store"
)

// Controls is the part of the manager the UI reads and steers.
type Controls interface {
	Pause()
	Resume()
	IsPaused() bool
	RunningStatus() manager.RunningStatus
	ErrorStatus() manager.ErrorStatus
	RecentN(n int) ([]*store.Record, error)
	RecordsInState(s store.State) ([]*store.Record, error)
}

// UIState represents the aggregated state for the TUI
type UIState struct {
	Running manager.RunningStatus
	Errors  manager.ErrorStatus
	Paused  bool

	Current *ActiveTransfer
	Queued  int

	Completed  int
	Failed     int
	ItemErrors int
	LastError  string

	ThroughputBPS float64
	Recent        []*store.Record
	Done          bool
}

// ActiveTransfer is the record the worker is executing.
type ActiveTransfer struct {
	RecordID  string
	Kind      store.Kind
	Item      string
	ItemIndex int
	ItemCount int
	Bytes     int64
}

// Progress is the share of items handled so far, 0.0 to 1.0.
func (a *ActiveTransfer) Progress() float64 {
	if a == nil || a.ItemCount == 0 {
		return 0
	}
	return float64(a.ItemIndex) / float64(a.ItemCount)
}

// Tracker folds status events into UIState. Register it as a manager listener.
type Tracker struct {
	mu         sync.Mutex
	current    *ActiveTransfer
	completed  int
	failed     int
	itemErrors int
	lastError  string
	bytes      int64
	since      time.Time
	now        func() time.Time
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// OnStatus implements manager.Listener.
func (t *Tracker) OnStatus(ev engine.StatusEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.since.IsZero() {
		t.since = t.now()
	}

	if ev.Terminal() {
		if ev.State == engine.EventSuccess {
			t.completed++
		} else {
			t.failed++
			if ev.Err != nil {
				t.lastError = ev.Err.Error()
			}
		}
		t.current = nil
		return
	}

	t.bytes += ev.BytesTransferred
	if t.current == nil || t.current.RecordID != ev.RecordID {
		t.current = &ActiveTransfer{RecordID: ev.RecordID, Kind: ev.Kind}
	}
	t.current.Item = ev.SourcePath
	t.current.ItemIndex = ev.ItemIndex
	t.current.ItemCount = ev.ItemCount
	t.current.Bytes += ev.BytesTransferred
	if ev.State == engine.EventError {
		t.itemErrors++
		if ev.Err != nil {
			t.lastError = ev.Err.Error()
		}
	}
}

// Snapshot combines the tracked events with the live manager status.
func (t *Tracker) Snapshot(c Controls, recent int) UIState {
	t.mu.Lock()
	st := UIState{
		Completed:  t.completed,
		Failed:     t.failed,
		ItemErrors: t.itemErrors,
		LastError:  t.lastError,
	}
	if t.current != nil {
		cur := *t.current
		st.Current = &cur
	}
	if !t.since.IsZero() {
		if secs := t.now().Sub(t.since).Seconds(); secs > 0 {
			st.ThroughputBPS = float64(t.bytes) / secs
		}
	}
	t.mu.Unlock()

	st.Running = c.RunningStatus()
	st.Errors = c.ErrorStatus()
	st.Paused = c.IsPaused()
	if queued, err := c.RecordsInState(store.StateEnqueued); err == nil {
		st.Queued = len(queued)
	}
	if recs, err := c.RecentN(recent); err == nil {
		st.Recent = recs
	}
	return st
}
