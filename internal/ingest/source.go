package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Source enumerates and fetches documents.
type Source interface {
	// List returns document names in a stable order.
	List(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, name string) (Document, error)
}

// DirSource reads supported files below a local directory.
type DirSource struct {
	Root string
}

func NewDirSource(root string) *DirSource {
	return &DirSource{Root: root}
}

func (d *DirSource) List(ctx context.Context) ([]string, error) {
	var names []string
	err := filepath.WalkDir(d.Root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || !Supported(entry.Name()) {
			return nil
		}
		rel, err := filepath.Rel(d.Root, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.Root, err)
	}
	sort.Strings(names)
	return names, nil
}

func (d *DirSource) Fetch(_ context.Context, name string) (Document, error) {
	data, err := os.ReadFile(filepath.Join(d.Root, filepath.FromSlash(name)))
	if err != nil {
		return Document{}, err
	}
	return Document{Name: name, Data: data}, nil
}
