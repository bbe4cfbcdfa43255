package store

import (
	"time"

	"github.com/franksops/gridq/account"
)

// Kind is the data movement a record asks for.
type Kind string

const (
	KindPut       Kind = "PUT"
	KindGet       Kind = "GET"
	KindReplicate Kind = "REPLICATE"
	KindCopy      Kind = "COPY"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindPut, KindGet, KindReplicate, KindCopy:
		return true
	}
	return false
}

// State is the lifecycle position of a record.
//
//	ENQUEUED -> PROCESSING -> COMPLETE | ERROR
//	PROCESSING -> ENQUEUED (startup recovery)
type State string

const (
	StateEnqueued   State = "ENQUEUED"
	StateProcessing State = "PROCESSING"
	StateComplete   State = "COMPLETE"
	StateError      State = "ERROR"
)

// Terminal reports whether no further automatic processing happens in s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}

// Status is the health of a record's latest attempt.
type Status string

const (
	StatusOK      Status = "OK"
	StatusWarning Status = "WARNING"
	StatusError   Status = "ERROR"
)

// Record is the durable form of one requested transfer and its resume checkpoint.
type Record struct {
	ID  string `json:"id"`
	Seq uint64 `json:"seq"`

	// Intent, fixed at enqueue.
	Kind       Kind            `json:"kind"`
	LocalPath  string          `json:"local_path,omitempty"`
	RemotePath string          `json:"remote_path"`
	TargetPath string          `json:"target_path,omitempty"`
	Resource   string          `json:"resource,omitempty"`
	Account    account.Account `json:"account"`
	CreatedAt  time.Time       `json:"created_at"`

	// Progress, owned by the worker executing the record.
	State              State     `json:"state"`
	Status             Status    `json:"status"`
	TransferStart      time.Time `json:"transfer_start,omitempty"`
	TransferEnd        time.Time `json:"transfer_end,omitempty"`
	LastSuccessfulPath string    `json:"last_successful_path,omitempty"`
	ItemErrors         int       `json:"item_errors,omitempty"`
	ErrorMessage       string    `json:"error_message,omitempty"`
}

// Clone returns a copy that can be mutated without touching r.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

// Source is the path data is read from.
func (r *Record) Source() string {
	if r.Kind == KindPut {
		return r.LocalPath
	}
	return r.RemotePath
}

// Target is the path data is written to. Replication writes to the same
// logical path on another resource.
func (r *Record) Target() string {
	switch r.Kind {
	case KindPut, KindReplicate:
		return r.RemotePath
	case KindGet:
		return r.LocalPath
	case KindCopy:
		return r.TargetPath
	}
	return ""
}
