package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/gridq/account"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func putRecord(local, remote string) *Record {
	return &Record{
		Kind:       KindPut,
		LocalPath:  local,
		RemotePath: remote,
		Resource:   "demoResc",
		Account:    account.New("localhost", 1247, "tempZone", "alice", "secret", "demoResc"),
	}
}

func TestBoltStore_EnqueueAndGet(t *testing.T) {
	s := newTestStore(t)

	rec := putRecord("/tmp/src", "/tempZone/home/alice")
	require.NoError(t, s.Enqueue(rec))

	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Equal(t, StateEnqueued, rec.State)
	assert.Equal(t, StatusOK, rec.Status)

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "/tmp/src", got.LocalPath)
	assert.Equal(t, rec.Account, got.Account)

	_, err = s.Get("non-existent")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestBoltStore_DuplicateEnqueue(t *testing.T) {
	s := newTestStore(t)

	a := putRecord("/tmp/src", "/tempZone/home/alice")
	b := putRecord("/tmp/src", "/tempZone/home/alice")
	require.NoError(t, s.Enqueue(a))
	require.NoError(t, s.Enqueue(b))

	queued, err := s.RecordsInState(StateEnqueued)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.NotEqual(t, queued[0].ID, queued[1].ID)
}

func TestBoltStore_NextEligibleIsOldestEnqueued(t *testing.T) {
	s := newTestStore(t)

	first := putRecord("/a", "/r")
	second := putRecord("/b", "/r")
	third := putRecord("/c", "/r")
	for _, r := range []*Record{first, second, third} {
		require.NoError(t, s.Enqueue(r))
	}

	next, err := s.NextEligible()
	require.NoError(t, err)
	assert.Equal(t, first.ID, next.ID)

	// not mutated by the lookup
	again, err := s.NextEligible()
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	first.State = StateComplete
	require.NoError(t, s.Update(first))

	next, err = s.NextEligible()
	require.NoError(t, err)
	assert.Equal(t, second.ID, next.ID)

	second.State = StateError
	third.State = StateProcessing
	require.NoError(t, s.Update(second))
	require.NoError(t, s.Update(third))

	next, err = s.NextEligible()
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestBoltStore_UpdateKeepsQueuePosition(t *testing.T) {
	s := newTestStore(t)

	a := putRecord("/a", "/r")
	b := putRecord("/b", "/r")
	require.NoError(t, s.Enqueue(a))
	require.NoError(t, s.Enqueue(b))

	a.LastSuccessfulPath = "/a/f1"
	require.NoError(t, s.Update(a))
	a.LastSuccessfulPath = "/a/f2"
	require.NoError(t, s.Update(a))

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, "/a/f2", all[0].LastSuccessfulPath)
	assert.Equal(t, b.ID, all[1].ID)
}

func TestBoltStore_UpdateInsertsUnknownRecord(t *testing.T) {
	s := newTestStore(t)

	rec := putRecord("/a", "/r")
	rec.State = StateProcessing
	rec.LastSuccessfulPath = "/a/f3"
	require.NoError(t, s.Update(rec))
	assert.NotEmpty(t, rec.ID)

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StateProcessing, got.State)
	assert.Equal(t, "/a/f3", got.LastSuccessfulPath)
}

func TestBoltStore_MostRecent(t *testing.T) {
	s := newTestStore(t)

	var ids []string
	for _, p := range []string{"/a", "/b", "/c", "/d"} {
		r := putRecord(p, "/r")
		require.NoError(t, s.Enqueue(r))
		ids = append(ids, r.ID)
	}

	recent, err := s.MostRecent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, ids[3], recent[0].ID)
	assert.Equal(t, ids[2], recent[1].ID)

	none, err := s.MostRecent(0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBoltStore_Delete(t *testing.T) {
	s := newTestStore(t)

	r := putRecord("/a", "/r")
	require.NoError(t, s.Enqueue(r))
	require.NoError(t, s.Delete(r.ID))

	_, err := s.Get(r.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.ErrorIs(t, s.Delete(r.ID), ErrRecordNotFound)
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")

	s, err := NewBoltStore(path)
	require.NoError(t, err)
	r := putRecord("/a", "/r")
	require.NoError(t, s.Enqueue(r))
	require.NoError(t, s.Close())

	s, err = NewBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, StateEnqueued, got.State)

	// sequence continues after reopen
	r2 := putRecord("/b", "/r")
	require.NoError(t, s.Enqueue(r2))
	assert.Greater(t, r2.Seq, r.Seq)
}

func TestBoltStore_Closed(t *testing.T) {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Get("job-123")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	err = s.Enqueue(putRecord("/a", "/r"))
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = s.NextEligible()
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestRecord_SourceAndTarget(t *testing.T) {
	tests := []struct {
		rec            Record
		source, target string
	}{
		{Record{Kind: KindPut, LocalPath: "/data/a", RemotePath: "/tempZone/home/alice"}, "/data/a", "/tempZone/home/alice"},
		{Record{Kind: KindGet, LocalPath: "/data/a", RemotePath: "/tempZone/home/alice/a"}, "/tempZone/home/alice/a", "/data/a"},
		{Record{Kind: KindReplicate, RemotePath: "/tempZone/home/alice/a", Resource: "replResc"}, "/tempZone/home/alice/a", "/tempZone/home/alice/a"},
		{Record{Kind: KindCopy, RemotePath: "/tempZone/home/alice/a", TargetPath: "/tempZone/home/bob"}, "/tempZone/home/alice/a", "/tempZone/home/bob"},
	}

	for _, tt := range tests {
		t.Run(string(tt.rec.Kind), func(t *testing.T) {
			assert.Equal(t, tt.source, tt.rec.Source())
			assert.Equal(t, tt.target, tt.rec.Target())
		})
	}
}
