package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sidekick.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGet_MissingKey(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("Get(missing) = %s, want nil", got)
	}
}

func TestSetGet_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	value := json.RawMessage(`{"obligations":[],"processed_payments":["received_500_400_1000"]}`)

	if err := s.Set(ctx, "sidekick.ledger", value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := s.Get(ctx, "sidekick.ledger")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(value) {
		t.Errorf("Get = %s, want %s", got, value)
	}
}

func TestSet_Overwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "k", json.RawMessage(`"first"`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, "k", json.RawMessage(`"second"`)); err != nil {
		t.Fatalf("second Set failed: %v", err)
	}
	got, _ := s.Get(ctx, "k")
	if string(got) != `"second"` {
		t.Errorf("Get after overwrite = %s, want %q", got, `"second"`)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "k", json.RawMessage(`1`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	got, _ := s.Get(ctx, "k")
	if got != nil {
		t.Errorf("Get after delete = %s, want nil", got)
	}
	// Deleting again is not an error.
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("double Delete = %v, want nil", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sidekick.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Set(ctx, "k", json.RawMessage(`{"survives":true}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()
	got, err := s2.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(got) != `{"survives":true}` {
		t.Errorf("Get after reopen = %s", got)
	}
}

func TestIsTransientSQLiteErr(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("SQLITE_BUSY: database is locked (5)"), true},
		{errors.New("database table is locked"), true},
		{errors.New("no such table: kv"), false},
	}
	for _, tt := range tests {
		if got := isTransientSQLiteErr(tt.err); got != tt.want {
			t.Errorf("isTransientSQLiteErr(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
