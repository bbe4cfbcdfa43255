package engine

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/franksops/gridq/store"
)

var (
	// ErrEngineFatal marks failures after which the data movement cannot go on
	// for the current record, e.g. the remote session is gone.
	ErrEngineFatal = errors.New("transfer engine cannot proceed")

	// ErrCancelled is returned when a ControlBlock stopped the operation between items.
	ErrCancelled = errors.New("transfer cancelled")
)

// ItemError is the failure of a single file within a transfer.
type ItemError struct {
	SourcePath string
	TargetPath string
	Err        error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("transfer of %s to %s failed: %v", e.SourcePath, e.TargetPath, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Severity says whether an error stops the whole record.
type Severity int

const (
	// Recoverable errors affect one item; the remaining items are still attempted.
	Recoverable Severity = iota
	// Fatal errors abort the record.
	Fatal
)

func (s Severity) String() string {
	if s == Fatal {
		return "fatal"
	}
	return "recoverable"
}

// Classify decides the severity of an error raised while executing a record.
// Network failures count as fatal.
func Classify(err error) Severity {
	var opErr *net.OpError
	switch {
	case err == nil:
		return Recoverable
	case errors.Is(err, ErrEngineFatal),
		errors.Is(err, ErrCancelled),
		errors.Is(err, store.ErrStoreUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &opErr):
		return Fatal
	}
	return Recoverable
}

func fatal(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrEngineFatal, msg, err)
}
