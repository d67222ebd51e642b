package storage

import (
	"path/filepath"
	"testing"
)

type fixture struct {
	Name  string
	Count int
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetAbsentKeyReportsFalse(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := Get[fixture](s, Key{Bucket: "thing", ID: "1"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected absent key to report ok=false")
	}
}

func TestPutThenGetRoundTrips(t *testing.T) {
	s := openTestStore(t)
	k := Key{Bucket: "thing", ID: "1"}
	want := fixture{Name: "alpha", Count: 3}
	if err := Put(s, k, want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := Get[fixture](s, k)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected key to be present after Put")
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	s := openTestStore(t)
	k := Key{Bucket: "thing", ID: "1"}
	if err := Put(s, k, fixture{Name: "alpha"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := Delete(s, k); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, ok, err := Get[fixture](s, k)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected key to be absent after Delete")
	}
}

func TestDeleteAbsentKeyIsNoop(t *testing.T) {
	s := openTestStore(t)
	if err := Delete(s, Key{Bucket: "thing", ID: "missing"}); err != nil {
		t.Fatalf("Delete on absent key: %v", err)
	}
}

func TestNextIDIsMonotonicAndStartsAtOne(t *testing.T) {
	s := openTestStore(t)
	first, err := NextID(s, "guild")
	if err != nil {
		t.Fatalf("NextID: %v", err)
	}
	if first != 1 {
		t.Fatalf("expected first id to be 1, got %d", first)
	}
	second, err := NextID(s, "guild")
	if err != nil {
		t.Fatalf("NextID: %v", err)
	}
	if second != 2 {
		t.Fatalf("expected second id to be 2, got %d", second)
	}
	current, err := CurrentID(s, "guild")
	if err != nil {
		t.Fatalf("CurrentID: %v", err)
	}
	if current != 2 {
		t.Fatalf("expected CurrentID to reflect the latest issued id, got %d", current)
	}
}

func TestNextIDCountersAreIndependent(t *testing.T) {
	s := openTestStore(t)
	if _, err := NextID(s, "guild"); err != nil {
		t.Fatalf("NextID(guild): %v", err)
	}
	proposal, err := NextID(s, "proposal")
	if err != nil {
		t.Fatalf("NextID(proposal): %v", err)
	}
	if proposal != 1 {
		t.Fatalf("expected an unrelated counter to start at 1, got %d", proposal)
	}
}

func TestCurrentIDOnUnseenCounterIsZero(t *testing.T) {
	s := openTestStore(t)
	current, err := CurrentID(s, "never-touched")
	if err != nil {
		t.Fatalf("CurrentID: %v", err)
	}
	if current != 0 {
		t.Fatalf("expected 0 for an unseen counter, got %d", current)
	}
}
