package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	// ErrRecordNotFound is returned when no record has the requested id.
	ErrRecordNotFound = errors.New("transfer record not found")

	// ErrStoreUnavailable is returned when the backing database cannot be read or written.
	ErrStoreUnavailable = errors.New("transfer store unavailable")
)

var (
	transfersBucket = []byte("transfers")
	idsBucket       = []byte("transfer_ids")
)

// QueueStore is the durable, ordered collection of transfer records.
type QueueStore interface {
	// Enqueue assigns identity, sequence and creation time and persists rec as ENQUEUED.
	Enqueue(rec *Record) error
	// NextEligible returns the oldest ENQUEUED record, or nil when there is none.
	// It does not change the record.
	NextEligible() (*Record, error)
	// Update writes the full field set of rec over its previous version.
	Update(rec *Record) error
	Get(id string) (*Record, error)
	// All lists every record, oldest first.
	All() ([]*Record, error)
	// RecordsInState lists records in state s, oldest first.
	RecordsInState(s State) ([]*Record, error)
	// MostRecent lists up to n records, newest first.
	MostRecent(n int) ([]*Record, error)
	Delete(id string) error
	Close() error
}

// BoltStore is a QueueStore backed by bbolt. Records are keyed by a bucket sequence
// so cursor order is insertion order.
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

var _ QueueStore = (*BoltStore)(nil)

// NewBoltStore opens (or creates) the queue database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, unavailable(fmt.Errorf("failed to open bbolt database: %w", err))
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(transfersBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(idsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, unavailable(fmt.Errorf("failed to create buckets: %w", err))
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// Enqueue persists rec as a new ENQUEUED record. Duplicate path pairs are accepted.
func (s *BoltStore) Enqueue(rec *Record) error {
	rec.ID = uuid.NewString()
	rec.CreatedAt = s.now().UTC()
	rec.State = StateEnqueued
	rec.Status = StatusOK
	rec.Seq = 0
	return s.Update(rec)
}

// Update persists rec. A record the store has never seen is inserted at the tail
// of the queue, getting an id if it has none.
func (s *BoltStore) Update(rec *Record) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(transfersBucket)
		ids := tx.Bucket(idsBucket)

		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = s.now().UTC()
		}

		if existing := ids.Get([]byte(rec.ID)); existing != nil {
			rec.Seq = binary.BigEndian.Uint64(existing)
		} else {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			rec.Seq = seq
			if err := ids.Put([]byte(rec.ID), seqKey(seq)); err != nil {
				return fmt.Errorf("failed to index record: %w", err)
			}
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		if err := b.Put(seqKey(rec.Seq), data); err != nil {
			return fmt.Errorf("failed to put record: %w", err)
		}
		return nil
	})
	return unavailable(err)
}

// Get retrieves a record by id.
func (s *BoltStore) Get(id string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket(idsBucket).Get([]byte(id))
		if key == nil {
			return ErrRecordNotFound
		}
		data := tx.Bucket(transfersBucket).Get(key)
		if data == nil {
			return ErrRecordNotFound
		}
		r, err := decode(data)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return rec, nil
}

// NextEligible returns the oldest ENQUEUED record or nil.
func (s *BoltStore) NextEligible() (*Record, error) {
	var next *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(transfersBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			rec, err := decode(v)
			if err != nil {
				return err
			}
			if rec.State == StateEnqueued {
				next = rec
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return next, nil
}

// All lists every record oldest first.
func (s *BoltStore) All() ([]*Record, error) {
	return s.scan(func(*Record) bool { return true })
}

// RecordsInState lists the records in state st, oldest first.
func (s *BoltStore) RecordsInState(st State) ([]*Record, error) {
	return s.scan(func(r *Record) bool { return r.State == st })
}

// MostRecent lists up to n records, newest first.
func (s *BoltStore) MostRecent(n int) ([]*Record, error) {
	var out []*Record
	if n <= 0 {
		return out, nil
	}
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(transfersBucket).Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			rec, err := decode(v)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// Delete removes a record and its id index entry.
func (s *BoltStore) Delete(id string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		ids := tx.Bucket(idsBucket)
		key := ids.Get([]byte(id))
		if key == nil {
			return ErrRecordNotFound
		}
		// key points into the transaction's memory, copy before deleting it
		k := append([]byte(nil), key...)
		if err := tx.Bucket(transfersBucket).Delete(k); err != nil {
			return err
		}
		return ids.Delete([]byte(id))
	})
	return unavailable(err)
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) scan(keep func(*Record) bool) ([]*Record, error) {
	var out []*Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(transfersBucket).ForEach(func(_, v []byte) error {
			rec, err := decode(v)
			if err != nil {
				return err
			}
			if keep(rec) {
				out = append(out, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func decode(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// unavailable tags database failures with ErrStoreUnavailable, leaving lookups alone.
func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrRecordNotFound) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
