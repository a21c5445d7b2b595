// Package view renders the HTML pages served by the app.
package view

import (
	"fmt"
	"html/template"
	"io"
	"io/fs"
)

const baseFilename = "base.html"

// View renders a single named HTML page. Every page is the base template
// with a page specific {name}.html providing the content blocks.
type View struct {
	name     string
	template *template.Template
}

// Parse parses the view with the given name from the file system.
func Parse(viewFS fs.FS, name string) (*View, error) {
	// View names are normally hardcoded, but if one ever comes from user
	// input it should not grant access to arbitrary files.
	if err := validateName(name); err != nil {
		return nil, err
	}

	files := []string{baseFilename}
	if name != "" && name+".html" != baseFilename {
		files = append(files, name+".html")
	}

	templ, err := template.New(baseFilename).ParseFS(viewFS, files...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse view %q: %w", name, err)
	}

	return &View{
		name:     name,
		template: templ,
	}, nil
}

// Render executes the view with the provided data and writes the result
// to w.
func (v *View) Render(w io.Writer, data any) error {
	return v.template.Execute(w, data)
}

// validateName checks if all characters are alphanumeric, dashes or
// underscores.
func validateName(name string) error {
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return fmt.Errorf("invalid character %q in view name %q", c, name)
		}
	}
	return nil
}
