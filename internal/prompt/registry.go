package prompt

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/fileio"
)

// Registry is the ordered prompt list backed by a JSON file.
// Every mutation is persisted before it returns. Safe for concurrent use.
type Registry struct {
	path     string
	maxChars int

	mu   sync.RWMutex
	defs []Definition
}

// Open loads the registry at path. A missing file is created with Defaults.
func Open(path string, maxChars int) (*Registry, error) {
	r := &Registry{path: path, maxChars: maxChars}

	data, err := fileio.ReadFile(path)
	switch {
	case err == nil:
		var defs []Definition
		if err := json.Unmarshal(data, &defs); err != nil {
			return nil, errors.NewPersistence("decode prompt configuration", err)
		}
		if err := checkUnique(defs); err != nil {
			return nil, err
		}
		r.defs = defs
	case os.IsNotExist(err):
		r.defs = Defaults()
		if err := r.save(); err != nil {
			return nil, err
		}
	default:
		return nil, errors.NewPersistence("read prompt configuration", err)
	}

	return r, nil
}

// Path returns the backing file.
func (r *Registry) Path() string {
	return r.path
}

// List returns a copy of all definitions in order.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Definition(nil), r.defs...)
}

// Enabled returns the enabled definitions in order.
func (r *Registry) Enabled() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Definition
	for _, d := range r.defs {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

// Get returns the definition whose normalized name matches name.
func (r *Registry) Get(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexOf(name)
	if i < 0 {
		return Definition{}, errors.NewNotFound("prompt", name)
	}
	return r.defs[i], nil
}

// Add appends a new definition.
func (r *Registry) Add(def Definition) (Definition, error) {
	def.Name = CleanName(def.Name)
	if def.Name == "" {
		return Definition{}, errors.NewInvalidRequest("name is required")
	}
	if err := r.lint(def.Template); err != nil {
		return Definition{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(def.Name) >= 0 {
		return Definition{}, errors.NewNameAlreadyExists(def.Name)
	}

	prev := r.defs
	r.defs = append(append([]Definition(nil), r.defs...), def)
	if err := r.save(); err != nil {
		r.defs = prev
		return Definition{}, err
	}
	return def, nil
}

// UpdateInput carries the mutable fields of a definition. Nil fields are unchanged.
type UpdateInput struct {
	Template *string
	Enabled  *bool
}

// Update changes the template and/or enabled flag of an existing definition.
func (r *Registry) Update(name string, in UpdateInput) (Definition, error) {
	if in.Template == nil && in.Enabled == nil {
		return Definition{}, errors.NewInvalidRequest("nothing to update")
	}
	if in.Template != nil {
		if err := r.lint(*in.Template); err != nil {
			return Definition{}, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(name)
	if i < 0 {
		return Definition{}, errors.NewNotFound("prompt", name)
	}

	prev := r.defs
	r.defs = append([]Definition(nil), r.defs...)
	if in.Template != nil {
		r.defs[i].Template = *in.Template
	}
	if in.Enabled != nil {
		r.defs[i].Enabled = *in.Enabled
	}
	if err := r.save(); err != nil {
		r.defs = prev
		return Definition{}, err
	}
	return r.defs[i], nil
}

// SetEnabled toggles a definition.
func (r *Registry) SetEnabled(name string, enabled bool) (Definition, error) {
	return r.Update(name, UpdateInput{Enabled: &enabled})
}

// Remove deletes a definition. Existing result slots for it are kept.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(name)
	if i < 0 {
		return errors.NewNotFound("prompt", name)
	}

	prev := r.defs
	next := make([]Definition, 0, len(r.defs)-1)
	next = append(next, r.defs[:i]...)
	r.defs = append(next, r.defs[i+1:]...)
	if err := r.save(); err != nil {
		r.defs = prev
		return err
	}
	return nil
}

func (r *Registry) lint(template string) error {
	res := Lint(LintInput{Template: template, MaxChars: r.maxChars})
	if res.Empty {
		return errors.NewInvalidRequest("prompt template is empty")
	}
	if res.TooLarge {
		return errors.NewInvalidRequest(fmt.Sprintf("prompt template has %d chars, max %d", res.ActualChars, res.MaxChars))
	}
	return nil
}

// indexOf must be called with r.mu held.
func (r *Registry) indexOf(name string) int {
	key := Normalize(name)
	for i, d := range r.defs {
		if Normalize(d.Name) == key {
			return i
		}
	}
	return -1
}

// save must be called with r.mu held for writing (or before r is shared).
func (r *Registry) save() error {
	defs := r.defs
	if defs == nil {
		defs = []Definition{}
	}
	data, err := json.MarshalIndent(defs, "", "  ")
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := fileio.WriteAtomic(r.path, append(data, '\n'), 0600); err != nil {
		return errors.NewPersistence("write prompt configuration", err)
	}
	return nil
}

func checkUnique(defs []Definition) error {
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		key := Normalize(d.Name)
		if key == "" {
			return errors.NewPersistence("decode prompt configuration", fmt.Errorf("prompt with empty name"))
		}
		if seen[key] {
			return errors.NewNameAlreadyExists(d.Name)
		}
		seen[key] = true
	}
	return nil
}
