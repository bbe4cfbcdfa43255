package engine

import (
	"sync"
	"time"

	"github.com/franksops/gridq/store"
)

// RecordTracker persists the progress of one record as its items complete.
// Every successful item moves the checkpoint forward and is written through
// to the store before the next item is reported, so a crash loses at most
// the item in flight.
type RecordTracker struct {
	store store.QueueStore
	now   func() time.Time

	mu     sync.Mutex
	record *store.Record
	// storeErr is the first persistence failure; once set nothing else is written.
	storeErr error
}

// NewRecordTracker tracks rec, which must already be PROCESSING.
func NewRecordTracker(st store.QueueStore, rec *store.Record) *RecordTracker {
	return &RecordTracker{store: st, record: rec, now: time.Now}
}

// Advance records path as the last successfully transferred item.
func (rt *RecordTracker) Advance(path string) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.storeErr != nil {
		return rt.storeErr
	}
	rt.record.LastSuccessfulPath = path
	return rt.save()
}

// ItemFailed counts a failed item. The checkpoint is left where it is.
func (rt *RecordTracker) ItemFailed(err error) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.storeErr != nil {
		return rt.storeErr
	}
	rt.record.ItemErrors++
	rt.record.Status = store.StatusWarning
	if err != nil {
		rt.record.ErrorMessage = err.Error()
	}
	return rt.save()
}

// MarkComplete closes the record successfully. A record that tolerated a
// missed checkpoint keeps a WARNING status.
func (rt *RecordTracker) MarkComplete(warn bool) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.record.State = store.StateComplete
	rt.record.Status = store.StatusOK
	if warn {
		rt.record.Status = store.StatusWarning
	}
	rt.record.TransferEnd = rt.now()
	return rt.finalSave()
}

// MarkFailed closes the record in ERROR. cause, when set, replaces the
// message of the last item error.
func (rt *RecordTracker) MarkFailed(cause error) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.record.State = store.StateError
	rt.record.Status = store.StatusError
	if cause != nil {
		rt.record.ErrorMessage = cause.Error()
	}
	rt.record.TransferEnd = rt.now()
	return rt.finalSave()
}

// Err returns the first persistence failure seen while tracking.
func (rt *RecordTracker) Err() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.storeErr
}

func (rt *RecordTracker) save() error {
	if err := rt.store.Update(rt.record); err != nil {
		rt.storeErr = err
		return err
	}
	return nil
}

// finalSave writes the terminal state even after an earlier failure, the
// store may have recovered.
func (rt *RecordTracker) finalSave() error {
	if err := rt.store.Update(rt.record); err != nil {
		if rt.storeErr == nil {
			rt.storeErr = err
		}
		return err
	}
	return nil
}
