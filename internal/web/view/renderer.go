package view

import (
	"fmt"
	"io"
	"io/fs"
	"strings"
)

// FSRenderer parses a view from the file system on every render. Changes
// to the files are picked up without restarting, useful in development.
type FSRenderer struct {
	fs fs.FS
}

func NewFSRenderer(fs fs.FS) *FSRenderer {
	return &FSRenderer{fs: fs}
}

func (r *FSRenderer) Render(w io.Writer, name string, data any) error {
	v, err := Parse(r.fs, name)
	if err != nil {
		return err
	}
	return v.Render(w, data)
}

// MemRenderer parses all views up front and serves them from memory.
type MemRenderer struct {
	views map[string]*View
}

// NewMemRenderer parses all the views in the given fs and stores the
// results in memory. It errors on the first view that fails to parse.
func NewMemRenderer(viewFS fs.FS) (*MemRenderer, error) {
	files, err := fs.Glob(viewFS, "*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to glob for views: %w", err)
	}

	views := make(map[string]*View, len(files))
	for _, file := range files {
		name := strings.TrimSuffix(file, ".html")

		view, err := Parse(viewFS, name)
		if err != nil {
			return nil, err
		}

		views[name] = view
	}

	return &MemRenderer{
		views: views,
	}, nil
}

func (r *MemRenderer) Render(w io.Writer, name string, data any) error {
	v, ok := r.views[name]
	if !ok {
		return fmt.Errorf("view %q not found", name)
	}

	return v.Render(w, data)
}
