package cache

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"), ttl)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t, time.Minute)

	if err := s.Put("acme pump", []byte(`{"risk":17}`)); err != nil {
		t.Fatal(err)
	}
	payload, ok, err := s.Get("acme pump")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(payload) != `{"risk":17}` {
		t.Fatalf("unexpected hit=%v payload=%s", ok, payload)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t, time.Minute)
	_, ok, err := s.Get("never stored")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected miss")
	}
}

func TestKeyNormalization(t *testing.T) {
	s := openTestStore(t, time.Minute)
	if err := s.Put("  Acme   Infusion Pump ", []byte("x")); err != nil {
		t.Fatal(err)
	}
	_, ok, err := s.Get("acme infusion pump")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected case- and whitespace-insensitive key match")
	}
}

func TestTTLExpiry(t *testing.T) {
	s := openTestStore(t, 10*time.Millisecond)
	if err := s.Put("acme pump", []byte("x")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	_, ok, err := s.Get("acme pump")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected expired entry evicted")
	}
}

func TestPutOverwrites(t *testing.T) {
	s := openTestStore(t, time.Minute)
	if err := s.Put("acme pump", []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("acme pump", []byte("new")); err != nil {
		t.Fatal(err)
	}
	payload, ok, _ := s.Get("acme pump")
	if !ok || string(payload) != "new" {
		t.Fatalf("expected upsert, got hit=%v payload=%s", ok, payload)
	}
}
