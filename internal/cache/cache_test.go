package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestGetFreshEntry(t *testing.T) {
	s := New(Options{TTL: time.Hour})
	now := time.Now()
	s.SetAt("k", []byte("v"), now)

	data, stale, ok := s.GetAt("k", now.Add(30*time.Minute))
	if !ok || stale {
		t.Fatalf("ok=%v stale=%v, want fresh hit", ok, stale)
	}
	if string(data) != "v" {
		t.Fatalf("data = %q", data)
	}
}

func TestGetStaleEntry(t *testing.T) {
	s := New(Options{TTL: time.Hour, Stale: time.Hour})
	now := time.Now()
	s.SetAt("k", []byte("v"), now)

	data, stale, ok := s.GetAt("k", now.Add(90*time.Minute))
	if !ok || !stale {
		t.Fatalf("ok=%v stale=%v, want stale hit", ok, stale)
	}
	if string(data) != "v" {
		t.Fatalf("data = %q", data)
	}
}

func TestGetExpiredEntry(t *testing.T) {
	s := New(Options{TTL: time.Hour, Stale: time.Hour})
	now := time.Now()
	s.SetAt("k", []byte("v"), now)

	if _, _, ok := s.GetAt("k", now.Add(3*time.Hour)); ok {
		t.Fatal("expired entry should miss")
	}
	if s.Len() != 0 {
		t.Fatalf("expired entry should be dropped, len=%d", s.Len())
	}
}

func TestZeroTTLDisablesCaching(t *testing.T) {
	s := New(Options{})
	s.Set("k", []byte("v"))
	if _, _, ok := s.Get("k"); ok {
		t.Fatal("zero TTL should never hit")
	}
}

func TestMaxSizeEvictsOldest(t *testing.T) {
	s := New(Options{TTL: time.Hour, MaxSize: 2})
	now := time.Now()
	s.SetAt("a", []byte("1"), now)
	s.SetAt("b", []byte("2"), now.Add(time.Minute))
	s.SetAt("c", []byte("3"), now.Add(2*time.Minute))

	if _, _, ok := s.GetAt("a", now.Add(3*time.Minute)); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, _, ok := s.GetAt("c", now.Add(3*time.Minute)); !ok {
		t.Fatal("newest entry should survive")
	}
}

func TestInvalidate(t *testing.T) {
	s := New(Options{TTL: time.Hour})
	s.Set("k", []byte("v"))
	s.Invalidate("k")
	if _, _, ok := s.Get("k"); ok {
		t.Fatal("invalidated entry should miss")
	}
}

func TestSetEvictsExpired(t *testing.T) {
	s := New(Options{TTL: time.Minute})
	now := time.Now()
	for i := 0; i < 5; i++ {
		s.SetAt(fmt.Sprintf("old-%d", i), []byte("x"), now)
	}
	s.SetAt("new", []byte("y"), now.Add(time.Hour))
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
}
