package finalize_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mpat-go/mpat/cryptutil"
	"github.com/mpat-go/mpat/finalize"
	"github.com/mpat-go/mpat/registry"
)

func buildSession(t *testing.T, reg *registry.Registry, sessionID uint32, plaintext []byte, segmentSize int) ([16]byte, [16]byte) {
	t.Helper()
	key, iv, err := cryptutil.NewKeyAndIV()
	if err != nil {
		t.Fatalf("NewKeyAndIV: %v", err)
	}
	ciphertext, err := cryptutil.Encrypt(key, iv, plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	reg.StoreKey(sessionID, key, iv)
	for i, off := 0, 0; off < len(ciphertext); i, off = i+1, off+segmentSize {
		end := off + segmentSize
		if end > len(ciphertext) {
			end = len(ciphertext)
		}
		if err := reg.StoreSegment(sessionID, uint32(i), ciphertext[off:end]); err != nil {
			t.Fatalf("StoreSegment: %v", err)
		}
	}
	return key, iv
}

func TestFinalizeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	buildSession(t, reg, 1, []byte("hello, mpat"), 4)

	f := finalize.New(reg, finalize.FileSink(dir))
	if err := f.Finalize(1); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "session_1.dat"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello, mpat" {
		t.Errorf("got %q, want %q", got, "hello, mpat")
	}
	if reg.Count() != 0 {
		t.Errorf("expected registry to delete the session record after finalize")
	}
}

func TestFinalizeMissingSegments(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	key, iv, _ := cryptutil.NewKeyAndIV()
	reg.StoreKey(2, key, iv)
	reg.StoreSegment(2, 0, []byte("0123456789abcdef"))
	reg.StoreSegment(2, 2, []byte("0123456789abcdef")) // gap at index 1

	f := finalize.New(reg, finalize.FileSink(dir))
	err := f.Finalize(2)
	if !errors.Is(err, finalize.ErrMissingSegments) {
		t.Fatalf("got %v, want ErrMissingSegments", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "session_2.dat")); statErr == nil {
		t.Error("expected no output file for a session with missing segments")
	}
}

func TestFinalizeDecryptionFailure(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	key, iv, _ := cryptutil.NewKeyAndIV()
	reg.StoreKey(3, key, iv)
	// Ciphertext that is block-aligned but decrypts to invalid padding
	// under this key/iv almost certainly (all-zero blocks rarely pad validly).
	reg.StoreSegment(3, 0, make([]byte, 16))

	f := finalize.New(reg, finalize.FileSink(dir))
	err := f.Finalize(3)
	if err == nil {
		t.Fatal("expected an error (decryption/padding failure is the overwhelmingly likely outcome)")
	}
}

func TestFinalizeReassemblyOrderIndependent(t *testing.T) {
	plaintext := make([]byte, 5000)
	for i := range plaintext {
		plaintext[i] = byte(i % 251)
	}

	dir := t.TempDir()
	reg := registry.New()
	key, iv, err := cryptutil.NewKeyAndIV()
	if err != nil {
		t.Fatalf("NewKeyAndIV: %v", err)
	}
	ciphertext, err := cryptutil.Encrypt(key, iv, plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	reg.StoreKey(4, key, iv)
	// Store the 64-byte segments in descending index order, the reverse
	// of the order in which they must be concatenated.
	const segmentSize = 64
	for i := (len(ciphertext) - 1) / segmentSize; i >= 0; i-- {
		end := (i + 1) * segmentSize
		if end > len(ciphertext) {
			end = len(ciphertext)
		}
		if err := reg.StoreSegment(4, uint32(i), ciphertext[i*segmentSize:end]); err != nil {
			t.Fatalf("StoreSegment: %v", err)
		}
	}

	f := finalize.New(reg, finalize.FileSink(dir))
	if err := f.Finalize(4); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "session_4.dat"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Error("reassembled plaintext does not match original payload")
	}
}

func TestFinalizeArchiveFailureDoesNotFailPrimary(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	buildSession(t, reg, 5, []byte("archived too"), 8)

	f := finalize.New(reg, finalize.FileSink(dir))
	f.Archive = func(sessionID uint32, plaintext []byte) error {
		return errors.New("archive backend unavailable")
	}
	if err := f.Finalize(5); err != nil {
		t.Fatalf("Finalize should succeed even if the archive sink fails: %v", err)
	}
}
