package transient

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// storeCases runs the same behaviour checks against every Store implementation
func storeCases(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("save and get", func(t *testing.T) {
		store := newStore(t)
		rec := New()
		rec.SetContact(LinkAlias("1"), 42)
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		got, err := store.Get(ctx, rec.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Contact("cid_1") != 42 {
			t.Errorf("Expected cid_1 = 42, got %d", got.Contact("cid_1"))
		}
		if got.UpdatedAt.IsZero() {
			t.Error("Expected UpdatedAt to be set")
		}
	})

	t.Run("save overwrites", func(t *testing.T) {
		store := newStore(t)
		rec := New()
		rec.SetContact("cid_1", 42)
		store.Save(ctx, rec)
		rec.SetContact("cid_2", 9)
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		got, err := store.Get(ctx, rec.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Contact("cid_1") != 42 || got.Contact("cid_2") != 9 {
			t.Errorf("Expected both links, got %v", got.Contacts)
		}
	})

	t.Run("missing", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if err := store.Delete(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound on delete, got %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		rec := New()
		store.Save(ctx, rec)
		if err := store.Delete(ctx, rec.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := store.Get(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("purge", func(t *testing.T) {
		store := newStore(t)
		purger, ok := store.(Purger)
		if !ok {
			t.Skip("store does not purge")
		}
		rec := New()
		store.Save(ctx, rec)

		n, err := purger.Purge(ctx, time.Now().Add(-time.Hour))
		if err != nil {
			t.Fatalf("Purge failed: %v", err)
		}
		if n != 0 {
			t.Errorf("Expected fresh record to survive, purged %d", n)
		}
		n, err = purger.Purge(ctx, time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("Purge failed: %v", err)
		}
		if n != 1 {
			t.Errorf("Expected 1 purged record, got %d", n)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	storeCases(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	storeCases(t, func(t *testing.T) Store {
		store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "transient.db"))
		if err != nil {
			t.Fatalf("Failed to open store: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "transient.db")

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	rec := New()
	rec.SetContact("cid_1", 42)
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Contact("cid_1") != 42 {
		t.Errorf("Expected cid_1 = 42 after reopen, got %d", got.Contact("cid_1"))
	}
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	saved := New()
	saved.SetContact("cid_1", 42)
	store.Save(ctx, saved)

	t.Run("empty id", func(t *testing.T) {
		rec, err := Load(ctx, store, "")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if rec.ID == "" || rec.ID == saved.ID {
			t.Errorf("Expected a fresh id, got %q", rec.ID)
		}
	})

	t.Run("existing", func(t *testing.T) {
		rec, err := Load(ctx, store, saved.ID)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if rec.Contact("cid_1") != 42 {
			t.Errorf("Expected stored links, got %v", rec.Contacts)
		}
	})

	t.Run("unknown uuid keeps id", func(t *testing.T) {
		id := New().ID
		rec, err := Load(ctx, store, id)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if rec.ID != id || len(rec.Contacts) != 0 {
			t.Errorf("Expected empty record %s, got %+v", id, rec)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		rec, err := Load(ctx, store, "../../etc")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if rec.ID == "../../etc" {
			t.Error("Expected a malformed id to be replaced")
		}
	})
}

func TestRecordClone(t *testing.T) {
	rec := New()
	rec.SetContact("cid_1", 42)
	clone := rec.Clone()
	clone.SetContact("cid_1", 7)
	if rec.Contact("cid_1") != 42 {
		t.Errorf("Expected clone to be independent, got %d", rec.Contact("cid_1"))
	}
	var missing *Record
	if missing.Contact("cid_1") != 0 {
		t.Error("Expected nil record to have no contacts")
	}
}
