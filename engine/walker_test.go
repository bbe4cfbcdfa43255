package engine

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/gridq/provider"
)

type mockFileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (m mockFileInfo) Name() string       { return m.name }
func (m mockFileInfo) Size() int64        { return m.size }
func (m mockFileInfo) IsDir() bool        { return m.isDir }
func (m mockFileInfo) ModTime() time.Time { return m.modTime }

type mockProvider struct {
	files   map[string]mockFileInfo
	dirs    map[string][]mockFileInfo
	listErr error
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		files: make(map[string]mockFileInfo),
		dirs:  make(map[string][]mockFileInfo),
	}
}

func (m *mockProvider) Stat(ctx context.Context, path string) (provider.FileInfo, error) {
	if info, ok := m.files[path]; ok {
		return info, nil
	}
	return nil, fs.ErrNotExist
}

func (m *mockProvider) List(ctx context.Context, path string) ([]provider.FileInfo, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	files, ok := m.dirs[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	res := make([]provider.FileInfo, len(files))
	for i, f := range files {
		res[i] = f
	}
	return res, nil
}

func (m *mockProvider) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (m *mockProvider) OpenWrite(ctx context.Context, path string, metadata provider.FileInfo) (io.WriteCloser, error) {
	return nil, errors.New("not implemented")
}

// /root
// /root/file1.txt
// /root/dir1/file2.txt
// /root/dir1/dir2/file3.txt
// /root/b.txt
func treeProvider() *mockProvider {
	mp := newMockProvider()
	mp.files["/root"] = mockFileInfo{name: "root", isDir: true}
	mp.dirs["/root"] = []mockFileInfo{
		{name: "file1.txt", size: 1},
		{name: "dir1", isDir: true},
		{name: "b.txt", size: 2},
	}
	mp.dirs["/root/dir1"] = []mockFileInfo{
		{name: "file2.txt", size: 3},
		{name: "dir2", isDir: true},
	}
	mp.dirs["/root/dir1/dir2"] = []mockFileInfo{
		{name: "file3.txt", size: 4},
	}
	return mp
}

func TestWalker_Walk(t *testing.T) {
	items, rootInfo, err := NewWalker(treeProvider()).Walk(context.Background(), "/root")
	require.NoError(t, err)
	assert.True(t, rootInfo.IsDir())

	var paths, rels []string
	for _, it := range items {
		paths = append(paths, it.Path)
		rels = append(rels, it.Rel)
	}
	assert.Equal(t, []string{
		"/root/b.txt",
		"/root/dir1/dir2/file3.txt",
		"/root/dir1/file2.txt",
		"/root/file1.txt",
	}, paths)
	assert.Equal(t, []string{"b.txt", "dir1/dir2/file3.txt", "dir1/file2.txt", "file1.txt"}, rels)
}

func TestWalker_Walk_OrderIsStable(t *testing.T) {
	first, _, err := NewWalker(treeProvider()).Walk(context.Background(), "/root")
	require.NoError(t, err)

	// Same tree, listing order reversed.
	mp := treeProvider()
	entries := mp.dirs["/root"]
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	second, _, err := NewWalker(mp).Walk(context.Background(), "/root")
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Path, second[i].Path)
	}
}

func TestWalker_Walk_SingleFile(t *testing.T) {
	mp := newMockProvider()
	mp.files["/root/file1.txt"] = mockFileInfo{name: "file1.txt", size: 9}

	items, rootInfo, err := NewWalker(mp).Walk(context.Background(), "/root/file1.txt")
	require.NoError(t, err)
	assert.False(t, rootInfo.IsDir())
	require.Len(t, items, 1)
	assert.Equal(t, "/root/file1.txt", items[0].Path)
	assert.Empty(t, items[0].Rel)
}

func TestWalker_Walk_EmptyCollection(t *testing.T) {
	mp := newMockProvider()
	mp.files["/empty"] = mockFileInfo{name: "empty", isDir: true}
	mp.dirs["/empty"] = nil

	items, _, err := NewWalker(mp).Walk(context.Background(), "/empty")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestWalker_Walk_Errors(t *testing.T) {
	_, _, err := NewWalker(newMockProvider()).Walk(context.Background(), "/missing")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	mp := treeProvider()
	mp.listErr = errors.New("listing refused")
	_, _, err = NewWalker(mp).Walk(context.Background(), "/root")
	assert.ErrorContains(t, err, "listing refused")
}

func TestResumeIndex(t *testing.T) {
	items := []Item{{Path: "/c/a"}, {Path: "/c/b"}, {Path: "/c/c"}}

	tests := []struct {
		name       string
		checkpoint string
		start      int
		found      bool
	}{
		{"no checkpoint", "", 0, true},
		{"first item", "/c/a", 1, true},
		{"last item", "/c/c", 3, true},
		{"unknown path", "/c/zzz", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, found := resumeIndex(items, tt.checkpoint)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.found, found)
		})
	}
}
