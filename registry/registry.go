// Package registry implements the Receiver Session Registry of
// spec.md §4.6: per-session state keyed by a client-supplied session
// identifier, each record protected by its own mutex so that distinct
// sessions never contend with each other.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mpat-go/mpat/logging"
	"github.com/mpat-go/mpat/metrics"
)

// ErrUnknownSession is returned by StoreSegment when no KEY frame (and
// so no session record) has been seen yet for the given session_id.
var ErrUnknownSession = errors.New("registry: no session record for this session_id")

// Session holds one receiver-side transfer's mutable state: its
// symmetric key and iv, and the sparse map of segments received so
// far. All field access happens under mu.
type Session struct {
	mu       sync.Mutex
	Key      [16]byte
	IV       [16]byte
	hasKey   bool
	Segments map[uint32][]byte
}

// Registry is the top-level sessionid -> *Session table. The table
// itself is guarded by its own mutex; each Session's fields are
// guarded independently, so operations on different sessions never
// block each other.
type Registry struct {
	mu       sync.Mutex
	sessions map[uint32]*Session
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{sessions: make(map[uint32]*Session)}
}

// getOrCreate returns the session record for id, creating one if this
// is the first KEY frame seen for it. Only StoreKey calls it.
func (r *Registry) getOrCreate(id uint32) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		s = &Session{Segments: make(map[uint32][]byte)}
		r.sessions[id] = s
		metrics.RegistrySessionGauge.Set(float64(len(r.sessions)))
	}
	return s
}

// StoreKey creates the session record if absent, otherwise overwrites
// the stored key/iv. Per spec.md §4.6 the sender sends KEY to every
// channel, so the receiver expects up to N identical writes;
// overwriting with identical bytes is benign. A write with differing
// bytes is still applied (see DESIGN.md's Open Question decision) but
// is logged at warn level since it indicates a conflicting KEY frame.
func (r *Registry) StoreKey(sessionID uint32, key, iv [16]byte) {
	s := r.getOrCreate(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasKey && (s.Key != key || s.IV != iv) {
		logging.WithField("session_id", sessionID).Warn("overwriting session key/iv with conflicting bytes")
	}
	s.Key = key
	s.IV = iv
	s.hasKey = true
}

// StoreSegment inserts ciphertext at index under the session's mutex.
// It requires a session record to already exist (only a KEY creates
// one; StoreSegment never does); ErrUnknownSession otherwise.
// Duplicate index writes overwrite, which is safe because the
// ciphertext at a given index is deterministic under the session's
// key.
func (r *Registry) StoreSegment(sessionID, index uint32, ciphertext []byte) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: session_id=%d", ErrUnknownSession, sessionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(ciphertext))
	copy(buf, ciphertext)
	s.Segments[index] = buf
	return nil
}

// Snapshot captures a session's key, iv, and segments under its mutex,
// for handoff to the Finalizer. It does not remove the session; call
// Delete once finalize has consumed the snapshot.
func (r *Registry) Snapshot(sessionID uint32) (key, iv [16]byte, segments map[uint32][]byte, hasKey bool, ok bool) {
	r.mu.Lock()
	s, exists := r.sessions[sessionID]
	r.mu.Unlock()
	if !exists {
		return key, iv, nil, false, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	segs := make(map[uint32][]byte, len(s.Segments))
	for idx, ct := range s.Segments {
		segs[idx] = ct
	}
	return s.Key, s.IV, segs, s.hasKey, true
}

// Delete removes a session record and its mutex, per spec.md §4.6's
// "finalize deletes the session record" and §3's "no session state
// outlives the Finalizer's release step."
func (r *Registry) Delete(sessionID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	metrics.RegistrySessionGauge.Set(float64(len(r.sessions)))
}

// Count reports the number of sessions currently held open; exposed
// for tests and diagnostics.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
