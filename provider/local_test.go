package provider

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/gridq/account"
)

func TestLocalProvider_Stat(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "test-stat.txt"), []byte("hello stat"), 0644))

	p := NewLocalProvider(base)
	info, err := p.Stat(context.Background(), "test-stat.txt")
	require.NoError(t, err)

	assert.Equal(t, "test-stat.txt", info.Name())
	assert.Equal(t, int64(len("hello stat")), info.Size())
	assert.False(t, info.IsDir())

	_, err = p.Stat(context.Background(), "missing.txt")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLocalProvider_List(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "subdir", "inner"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "subdir", "file1.txt"), []byte("f1"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "subdir", "file2.txt"), []byte("f2"), 0644))

	infos, err := NewLocalProvider(base).List(context.Background(), "subdir")
	require.NoError(t, err)

	names := map[string]bool{}
	for _, info := range infos {
		names[info.Name()] = info.IsDir()
	}
	assert.Equal(t, map[string]bool{"file1.txt": false, "file2.txt": false, "inner": true}, names)
}

func TestLocalProvider_RootedPathsStayInside(t *testing.T) {
	base := t.TempDir()
	p := NewLocalProvider(base)

	full, err := p.resolve("/tempZone/home/../../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "etc", "passwd"), full)
}

func TestLocalProvider_OpenWrite(t *testing.T) {
	base := t.TempDir()
	p := NewLocalProvider(base)
	ctx := context.Background()

	modTime := time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC)
	wc, err := p.OpenWrite(ctx, "nested/test-write.txt", NewFileInfo("test-write.txt", 11, false, modTime))
	require.NoError(t, err)

	n, err := wc.Write([]byte("hello write"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	require.NoError(t, wc.Close())

	full := filepath.Join(base, "nested", "test-write.txt")
	data, err := os.ReadFile(full)
	require.NoError(t, err)
	assert.Equal(t, "hello write", string(data))

	stat, err := os.Stat(full)
	require.NoError(t, err)
	assert.True(t, stat.ModTime().Equal(modTime), "mod time %v", stat.ModTime())

	rc, err := p.OpenRead(ctx, "nested/test-write.txt")
	require.NoError(t, err)
	defer rc.Close()
	back, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello write", string(back))
}

func TestLocalProvider_PreservesMode(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "run.sh"), []byte("#!/bin/sh"), 0700))

	ctx := context.Background()
	info, err := NewLocalProvider(src).Stat(ctx, "run.sh")
	require.NoError(t, err)

	wc, err := NewLocalProvider(dst).OpenWrite(ctx, "run.sh", info)
	require.NoError(t, err)
	require.NoError(t, wc.Close())

	stat, err := os.Stat(filepath.Join(dst, "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), stat.Mode().Perm())
}

func TestLocalSessions_OneDirectoryPerResource(t *testing.T) {
	root := t.TempDir()
	sessions := NewLocalSessions(root)
	acct := account.New("localhost", 1247, "tempZone", "alice", "pw", "demoResc")
	ctx := context.Background()

	def, err := sessions.Open(ctx, acct, "")
	require.NoError(t, err)
	other, err := sessions.Open(ctx, acct, "archiveResc")
	require.NoError(t, err)

	for _, p := range []Provider{def, other} {
		wc, err := p.OpenWrite(ctx, "/tempZone/home/alice/a.txt", nil)
		require.NoError(t, err)
		_, err = wc.Write([]byte("x"))
		require.NoError(t, err)
		require.NoError(t, wc.Close())
	}

	assert.FileExists(t, filepath.Join(root, "demoResc", "tempZone", "home", "alice", "a.txt"))
	assert.FileExists(t, filepath.Join(root, "archiveResc", "tempZone", "home", "alice", "a.txt"))

	_, err = sessions.Open(ctx, account.Account{}, "")
	assert.Error(t, err)
}
