package engine

import (
	"time"

	"github.com/franksops/gridq/store"
)

// EventState is the outcome an event reports.
type EventState string

const (
	EventSuccess EventState = "SUCCESS"
	EventError   EventState = "ERROR"
)

// EventScope tells item events from the single terminal event of a record.
type EventScope string

const (
	ScopeItem     EventScope = "ITEM"
	ScopeTransfer EventScope = "TRANSFER"
)

// StatusEvent reports one completed or failed item, or the end of a record.
// Item indexes are 1-based positions in the full enumeration, skipped items included.
type StatusEvent struct {
	RecordID string
	Kind     store.Kind
	Scope    EventScope
	State    EventState

	SourcePath string
	TargetPath string
	Resource   string

	BytesTransferred int64
	TotalBytes       int64
	ItemIndex        int
	ItemCount        int

	// Err is the cause of an ERROR event.
	Err  error
	Time time.Time
}

// Terminal reports whether e closes its record's event stream.
func (e StatusEvent) Terminal() bool {
	return e.Scope == ScopeTransfer
}

// EventSink receives item events from a Mover in item completion order.
type EventSink func(StatusEvent)
