package provider

import (
	"context"
	"io"
	"time"

	"github.com/franksops/gridq/account"
)

// FileInfo represents the standard metadata for a file or a collection
// across different storage abstractions.
type FileInfo interface {
	Name() string
	Size() int64
	IsDir() bool
	ModTime() time.Time
}

// Provider represents a storage backend abstraction: the local filesystem, a
// grid resource, an S3 bucket.
//
// Paths are slash separated.
type Provider interface {
	// Stat returns the FileInfo for the given path. A missing path yields an
	// error matching fs.ErrNotExist.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// List returns the direct children of the given collection.
	List(ctx context.Context, path string) ([]FileInfo, error)

	// OpenRead opens a file for streaming reads.
	OpenRead(ctx context.Context, path string) (io.ReadCloser, error)

	// OpenWrite opens a file for streaming writes. The write is only durable
	// once Close returns nil.
	OpenWrite(ctx context.Context, path string, metadata FileInfo) (io.WriteCloser, error)
}

// Sessions opens providers for a remote account on a named storage resource.
// An empty resource means the account's default resource.
type Sessions interface {
	Open(ctx context.Context, acct account.Account, resource string) (Provider, error)
}

type fileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (f *fileInfo) Name() string       { return f.name }
func (f *fileInfo) Size() int64        { return f.size }
func (f *fileInfo) IsDir() bool        { return f.isDir }
func (f *fileInfo) ModTime() time.Time { return f.modTime }

// NewFileInfo builds a FileInfo from raw values.
func NewFileInfo(name string, size int64, isDir bool, modTime time.Time) FileInfo {
	return &fileInfo{name: name, size: size, isDir: isDir, modTime: modTime}
}

func resourceOrDefault(acct account.Account, resource string) string {
	if resource != "" {
		return resource
	}
	return acct.DefaultResource
}
