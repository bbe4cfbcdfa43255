package engine

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/franksops/gridq/provider"
)

// Item is one file found under a transfer source.
type Item struct {
	// Path is the full source path, the value recorded as a checkpoint.
	Path string
	// Rel is Path relative to the walked root, empty when the root is a file.
	Rel  string
	Info provider.FileInfo
}

// Walker enumerates the files under a root iteratively, avoiding deep recursion
// on very deep collection trees.
type Walker struct {
	Source provider.Provider
}

// NewWalker creates a walker over src.
func NewWalker(src provider.Provider) *Walker {
	return &Walker{Source: src}
}

// Walk lists every file under root in lexicographic order of full path. The
// order is the resume contract: the same tree always yields the same sequence.
// The returned info describes root itself.
func (w *Walker) Walk(ctx context.Context, root string) ([]Item, provider.FileInfo, error) {
	stat, err := w.Source.Stat(ctx, root)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat source %s: %w", root, err)
	}
	if !stat.IsDir() {
		return []Item{{Path: root, Info: stat}}, stat, nil
	}

	var items []Item
	stack := []string{""}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		rel := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		dir := root
		if rel != "" {
			dir = path.Join(root, rel)
		}
		entries, err := w.Source.List(ctx, dir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list collection %s: %w", dir, err)
		}

		for _, entry := range entries {
			entryRel := entry.Name()
			if rel != "" {
				entryRel = path.Join(rel, entry.Name())
			}
			if entry.IsDir() {
				stack = append(stack, entryRel)
				continue
			}
			items = append(items, Item{
				Path: path.Join(root, entryRel),
				Rel:  entryRel,
				Info: entry,
			})
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return items, stat, nil
}

// resumeIndex returns the position of the first item to transfer given the
// checkpoint path. Items at or before the checkpoint are skipped. When the
// checkpoint is not in the listing everything is transferred and found is false.
func resumeIndex(items []Item, checkpoint string) (start int, found bool) {
	if checkpoint == "" {
		return 0, true
	}
	for i, it := range items {
		if it.Path == checkpoint {
			return i + 1, true
		}
	}
	return 0, false
}
