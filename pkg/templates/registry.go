// Package templates renders the concierge's text templates (system prompts,
// user-facing notices) from files embedded in the binary.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"
	"text/template"
	"time"
)

//go:embed assets/**/*.tmpl
var embeddedFS embed.FS

// Funcs available to every template
var Funcs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "unknown"
		}
		return t.Format("Mon 2 Jan 2006")
	},
	"join": strings.Join,
}

// Template is one parsed template
type Template struct {
	ID     string
	parsed *template.Template
}

// Render executes the template with data
func (t *Template) Render(data any) (string, error) {
	var buf bytes.Buffer
	if err := t.parsed.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", t.ID, err)
	}
	return buf.String(), nil
}

// Registry resolves templates by ID ("concierge/system" for concierge/system.tmpl)
type Registry struct {
	templates map[string]*Template
}

// NewRegistryFromFS parses every .tmpl file in filesystem up front
func NewRegistryFromFS(filesystem fs.FS) (*Registry, error) {
	r := &Registry{templates: map[string]*Template{}}

	err := fs.WalkDir(filesystem, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".tmpl" {
			return nil
		}

		content, err := fs.ReadFile(filesystem, p)
		if err != nil {
			return fmt.Errorf("read template %s: %w", p, err)
		}

		id := strings.TrimSuffix(p, ".tmpl")
		parsed, err := template.New(id).Funcs(Funcs).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return fmt.Errorf("parse template %s: %w", id, err)
		}
		r.templates[id] = &Template{ID: id, parsed: parsed}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the registry built from the embedded assets
func Get() *Registry {
	defaultOnce.Do(func() {
		sub, err := fs.Sub(embeddedFS, "assets")
		if err != nil {
			defaultErr = fmt.Errorf("prepare embedded templates: %w", err)
			return
		}
		defaultRegistry, defaultErr = NewRegistryFromFS(sub)
	})

	if defaultErr != nil {
		panic(defaultErr)
	}
	return defaultRegistry
}

// Render executes a template by ID
func (r *Registry) Render(id string, data any) (string, error) {
	tmpl, ok := r.templates[id]
	if !ok {
		return "", fmt.Errorf("template not found: %s", id)
	}
	return tmpl.Render(data)
}

// List returns all known template IDs
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	return ids
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)
