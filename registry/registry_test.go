package registry_test

import (
	"sync"
	"testing"

	"github.com/mpat-go/mpat/registry"
)

func TestStoreSegmentRequiresSession(t *testing.T) {
	r := registry.New()
	err := r.StoreSegment(1, 0, []byte("x"))
	if err == nil {
		t.Fatal("expected ErrUnknownSession for a session with no KEY yet")
	}
}

func TestStoreKeyThenSegment(t *testing.T) {
	r := registry.New()
	key := [16]byte{1, 2, 3}
	iv := [16]byte{4, 5, 6}
	r.StoreKey(42, key, iv)

	if err := r.StoreSegment(42, 0, []byte("abc")); err != nil {
		t.Fatalf("StoreSegment: %v", err)
	}

	gotKey, gotIV, segs, hasKey, ok := r.Snapshot(42)
	if !ok || !hasKey {
		t.Fatal("expected session to exist with a key")
	}
	if gotKey != key || gotIV != iv {
		t.Errorf("got key/iv %v/%v, want %v/%v", gotKey, gotIV, key, iv)
	}
	if string(segs[0]) != "abc" {
		t.Errorf("got segment 0 = %q, want %q", segs[0], "abc")
	}
}

func TestStoreKeyIdempotentOverwrite(t *testing.T) {
	r := registry.New()
	key := [16]byte{9, 9, 9}
	iv := [16]byte{8, 8, 8}
	r.StoreKey(7, key, iv)
	r.StoreKey(7, key, iv) // identical repeat, as every channel sends KEY

	gotKey, gotIV, _, hasKey, ok := r.Snapshot(7)
	if !ok || !hasKey || gotKey != key || gotIV != iv {
		t.Fatal("identical repeated KEY should leave state unchanged")
	}
}

func TestStoreKeyConflictingOverwrites(t *testing.T) {
	r := registry.New()
	key1 := [16]byte{1}
	key2 := [16]byte{2}
	iv := [16]byte{3}
	r.StoreKey(7, key1, iv)
	r.StoreKey(7, key2, iv)

	gotKey, _, _, _, _ := r.Snapshot(7)
	if gotKey != key2 {
		t.Errorf("got key %v, want the later conflicting write %v (documented overwrite policy)", gotKey, key2)
	}
}

func TestDuplicateSegmentIndexOverwrites(t *testing.T) {
	r := registry.New()
	r.StoreKey(1, [16]byte{}, [16]byte{})
	r.StoreSegment(1, 5, []byte("first"))
	r.StoreSegment(1, 5, []byte("second"))

	_, _, segs, _, _ := r.Snapshot(1)
	if string(segs[5]) != "second" {
		t.Errorf("got %q, want last write %q to win", segs[5], "second")
	}
}

func TestDeleteRemovesSession(t *testing.T) {
	r := registry.New()
	r.StoreKey(3, [16]byte{}, [16]byte{})
	r.Delete(3)
	if _, _, _, _, ok := r.Snapshot(3); ok {
		t.Fatal("expected session to be gone after Delete")
	}
}

func TestConcurrentDistinctSessionsDoNotBlock(t *testing.T) {
	r := registry.New()
	var wg sync.WaitGroup
	for i := uint32(0); i < 50; i++ {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			r.StoreKey(id, [16]byte{byte(id)}, [16]byte{})
			for seg := uint32(0); seg < 10; seg++ {
				r.StoreSegment(id, seg, []byte{byte(seg)})
			}
		}(i)
	}
	wg.Wait()
	if r.Count() != 50 {
		t.Errorf("got %d sessions, want 50", r.Count())
	}
}
