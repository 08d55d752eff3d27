// Package transient keeps the contact-link table of a form submission: the
// mapping from a processor's contact-link alias (cid_N) to the CRM contact it
// created or resolved. Multi-page forms reuse the same record across
// requests by id.
package transient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no record exists for an id
var ErrNotFound = errors.New("transient: record not found")

// Record is the contact-link table of one submission
type Record struct {
	ID        string         `json:"id"`
	Contacts  map[string]int `json:"contacts"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store persists contact-link records
type Store interface {
	Get(ctx context.Context, id string) (*Record, error)
	Save(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// New creates an empty record with a fresh id
func New() *Record {
	return &Record{ID: uuid.NewString(), Contacts: make(map[string]int)}
}

// LinkAlias returns the alias under which contact link n is stored
func LinkAlias(link string) string {
	return "cid_" + link
}

// Contact returns the contact id stored under alias, 0 when unset
func (r *Record) Contact(alias string) int {
	if r == nil || r.Contacts == nil {
		return 0
	}
	return r.Contacts[alias]
}

// SetContact stores a contact id under alias
func (r *Record) SetContact(alias string, contactID int) {
	if r.Contacts == nil {
		r.Contacts = make(map[string]int)
	}
	r.Contacts[alias] = contactID
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	clone := &Record{ID: r.ID, UpdatedAt: r.UpdatedAt, Contacts: make(map[string]int, len(r.Contacts))}
	for k, v := range r.Contacts {
		clone.Contacts[k] = v
	}
	return clone
}

// Load returns the record for id, or a new record carrying that id when the
// store has none. An empty id always yields a new record.
func Load(ctx context.Context, store Store, id string) (*Record, error) {
	if id == "" {
		return New(), nil
	}
	rec, err := store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		if _, perr := uuid.Parse(id); perr != nil {
			return New(), nil
		}
		return &Record{ID: id, Contacts: make(map[string]int)}, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Purger is implemented by stores that can expire old records
type Purger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}
