package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/franksops/gridq/store"
)

// CurrentQueue lists every record still in the store, oldest first.
func (m *Manager) CurrentQueue() ([]*store.Record, error) {
	return m.store.All()
}

// RecentN lists up to n records, newest first.
func (m *Manager) RecentN(n int) ([]*store.Record, error) {
	return m.store.MostRecent(n)
}

// FindByID returns the record with the given id.
func (m *Manager) FindByID(id string) (*store.Record, error) {
	return m.store.Get(id)
}

// RecordsInState lists records in state s, oldest first.
func (m *Manager) RecordsInState(s store.State) ([]*store.Record, error) {
	return m.store.RecordsInState(s)
}

// Requeue puts a finished record back in the queue at its original
// position. With resume set the record restarts after its checkpoint,
// otherwise from the first item. Items that failed before the checkpoint
// are not retried by a resumed record.
func (m *Manager) Requeue(ctx context.Context, id string, resume bool) (*store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.queueMu.Lock()
	rec, err := m.store.Get(id)
	if err != nil {
		m.queueMu.Unlock()
		return nil, err
	}
	if !rec.State.Terminal() {
		m.queueMu.Unlock()
		return nil, fmt.Errorf("%w: record %s is %s, only finished records can be requeued", ErrInvalidArgument, id, rec.State)
	}

	rec.State = store.StateEnqueued
	rec.Status = store.StatusOK
	rec.ItemErrors = 0
	rec.ErrorMessage = ""
	rec.TransferStart = time.Time{}
	rec.TransferEnd = time.Time{}
	if !resume {
		rec.LastSuccessfulPath = ""
	}
	err = m.store.Update(rec)
	m.queueMu.Unlock()
	if err != nil {
		return nil, err
	}

	m.log.Info().Str("record", id).Bool("resume", resume).Str("checkpoint", rec.LastSuccessfulPath).Msg("transfer requeued")
	m.kick()
	return rec, nil
}

// Purge deletes every record in the given states and reports how many were
// removed. Only finished states may be purged; with no states given,
// COMPLETE records are purged.
func (m *Manager) Purge(ctx context.Context, states ...store.State) (int, error) {
	if len(states) == 0 {
		states = []store.State{store.StateComplete}
	}
	for _, s := range states {
		if !s.Terminal() {
			return 0, fmt.Errorf("%w: cannot purge %s records", ErrInvalidArgument, s)
		}
	}

	var purged int
	for _, s := range states {
		recs, err := m.store.RecordsInState(s)
		if err != nil {
			return purged, err
		}
		for _, rec := range recs {
			if err := ctx.Err(); err != nil {
				return purged, err
			}
			deleted, err := m.purgeOne(rec.ID, s)
			if err != nil {
				return purged, err
			}
			if deleted {
				purged++
			}
		}
	}
	m.log.Info().Int("purged", purged).Msg("purged finished transfers")
	return purged, nil
}

// purgeOne deletes record id if it is still in state s. A record requeued
// since it was listed is kept.
func (m *Manager) purgeOne(id string, s store.State) (bool, error) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()

	rec, err := m.store.Get(id)
	if errors.Is(err, store.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if rec.State != s {
		return false, nil
	}
	if err := m.store.Delete(id); err != nil {
		return false, err
	}
	return true, nil
}
