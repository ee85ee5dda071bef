// Package template loads workflow templates from YAML and serves them
// to the engine through an explicit, constructor-injected library (no
// process-wide registry).
package template

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/corvid-labs/chronicle/pkg/api"
)

// Parse decodes a workflow template from YAML bytes and validates it.
func Parse(data []byte) (api.Template, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return api.Template{}, fmt.Errorf("template: payload is empty")
	}
	var tpl api.Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return api.Template{}, fmt.Errorf("template: decode: %w", err)
	}
	if err := tpl.Validate(); err != nil {
		return api.Template{}, err
	}
	return tpl, nil
}

// LoadReader reads a template from an io.Reader.
func LoadReader(r io.Reader) (api.Template, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return api.Template{}, fmt.Errorf("template: read: %w", err)
	}
	return Parse(content)
}

// LoadFile loads a template from an explicit file path.
func LoadFile(path string) (api.Template, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return api.Template{}, fmt.Errorf("template: read %s: %w", path, err)
	}
	tpl, err := Parse(content)
	if err != nil {
		return api.Template{}, fmt.Errorf("template: %s: %w", path, err)
	}
	return tpl, nil
}

// Library is an in-memory, goroutine-safe template collection keyed by
// name. It implements api.TemplateSource.
type Library struct {
	mu        sync.RWMutex
	templates map[string]api.Template
}

var _ api.TemplateSource = (*Library)(nil)

// NewLibrary creates a Library seeded with the given templates. Each is
// validated before registration.
func NewLibrary(templates ...api.Template) (*Library, error) {
	lib := &Library{templates: make(map[string]api.Template)}
	for _, tpl := range templates {
		if err := lib.Register(tpl); err != nil {
			return nil, err
		}
	}
	return lib, nil
}

// LoadDir builds a Library from every .yaml/.yml file in dir.
func LoadDir(dir string) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("template: read dir %s: %w", dir, err)
	}

	lib := &Library{templates: make(map[string]api.Template)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		tpl, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if err := lib.Register(tpl); err != nil {
			return nil, err
		}
	}
	return lib, nil
}

// Register validates the template and adds it to the library. Names
// must be unique.
func (l *Library) Register(tpl api.Template) error {
	if err := tpl.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.templates[tpl.Name]; exists {
		return &api.ValidationError{Field: "name", Reason: "duplicate template " + tpl.Name}
	}
	l.templates[tpl.Name] = tpl
	return nil
}

// Template returns the named template.
func (l *Library) Template(name string) (api.Template, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tpl, ok := l.templates[name]
	if !ok {
		return api.Template{}, &api.ValidationError{Field: "template", Reason: "unknown template " + name}
	}
	return tpl, nil
}

// Names lists registered template names in sorted order.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.templates))
	for name := range l.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
