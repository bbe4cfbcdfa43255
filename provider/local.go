package provider

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"
)

// LocalProvider implements Provider for posix-compliant local filesystems.
type LocalProvider struct {
	basePath string
}

// NewLocalProvider creates a new LocalProvider rooted at basePath.
// If basePath is empty, it acts upon absolute or relative paths directly.
func NewLocalProvider(basePath string) *LocalProvider {
	return &LocalProvider{basePath: basePath}
}

// resolve maps a slash path onto the filesystem. Rooted paths are cleaned
// before joining so they cannot climb above basePath.
func (p *LocalProvider) resolve(path string) (string, error) {
	native := filepath.FromSlash(path)
	if p.basePath == "" {
		return native, nil
	}
	return filepath.Join(p.basePath, filepath.Clean(string(filepath.Separator)+native)), nil
}

func (p *LocalProvider) Stat(ctx context.Context, path string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := p.resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	return wrapOSFileInfo(info), nil
}

func (p *LocalProvider) List(ctx context.Context, path string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := p.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, err
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue // skip files that disappeared between ReadDir and Info
		}
		infos = append(infos, wrapOSFileInfo(info))
	}
	return infos, nil
}

func (p *LocalProvider) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := p.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

func (p *LocalProvider) OpenWrite(ctx context.Context, path string, metadata FileInfo) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := p.resolve(path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return nil, err
	}

	mode := os.FileMode(0644)
	if li, ok := metadata.(*localFileInfo); ok && li.mode != 0 {
		mode = li.mode
	}

	file, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return nil, err
	}
	return &localWriteCloser{File: file, fullPath: full, metadata: metadata}, nil
}

type localFileInfo struct {
	fileInfo
	mode os.FileMode
}

func wrapOSFileInfo(info os.FileInfo) FileInfo {
	return &localFileInfo{
		fileInfo: fileInfo{
			name:    info.Name(),
			size:    info.Size(),
			isDir:   info.IsDir(),
			modTime: info.ModTime(),
		},
		mode: info.Mode().Perm(),
	}
}

// localWriteCloser restores the source modification time on close, since
// writing the file bumps it.
type localWriteCloser struct {
	*os.File
	fullPath string
	metadata FileInfo
}

func (l *localWriteCloser) Close() error {
	if err := l.File.Close(); err != nil {
		return err
	}
	if l.metadata != nil && !l.metadata.ModTime().IsZero() {
		// best effort, a failed chtimes does not fail the transfer
		_ = os.Chtimes(l.fullPath, time.Now(), l.metadata.ModTime())
	}
	return nil
}
