package api

import (
	"fmt"
	"sort"
	"sync"

	"cf-civicrm/internal/models"
)

// FormRegistry holds form definitions loaded through the API
type FormRegistry struct {
	forms map[string]*models.Form
	mu    sync.RWMutex
}

// NewFormRegistry creates an empty form registry
func NewFormRegistry() *FormRegistry {
	return &FormRegistry{forms: make(map[string]*models.Form)}
}

// Put stores a form, replacing any form with the same ID
func (r *FormRegistry) Put(form *models.Form) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forms[form.ID] = form
}

// Get returns a copy of a registered form
func (r *FormRegistry) Get(id string) (*models.Form, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	form, ok := r.forms[id]
	if !ok {
		return nil, fmt.Errorf("form with ID %s not found", id)
	}
	return form.Clone(), nil
}

// Delete removes a form
func (r *FormRegistry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.forms[id]; !ok {
		return fmt.Errorf("form with ID %s not found", id)
	}
	delete(r.forms, id)
	return nil
}

// List returns the registered forms ordered by ID
func (r *FormRegistry) List() []*models.Form {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Form, 0, len(r.forms))
	for _, f := range r.forms {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered forms
func (r *FormRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.forms)
}
