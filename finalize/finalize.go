// Package finalize implements the Finalizer of spec.md §4.7: on FIN,
// concatenate a session's segments by ascending index, decrypt, strip
// padding, and hand the plaintext to a sink.
package finalize

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mpat-go/mpat/cryptutil"
	"github.com/mpat-go/mpat/logging"
	"github.com/mpat-go/mpat/metrics"
	"github.com/mpat-go/mpat/registry"
)

// ErrMissingSegments is returned when the stored segment indices are
// not exactly {0, ..., N-1}; spec.md §4.7 step 1.
var ErrMissingSegments = errors.New("finalize: stored segment indices are not a contiguous 0..N-1 range")

// ErrDecryptionFailure wraps any AES-CBC or padding failure while
// reassembling a session; spec.md §4.7 step 4.
var ErrDecryptionFailure = errors.New("finalize: decryption or padding failure")

// ErrNoKey is returned when a FIN arrives for a session that never
// received a KEY frame.
var ErrNoKey = errors.New("finalize: no key/iv recorded for this session")

// Sink receives one session's reassembled, decrypted plaintext. The
// default sink (FileSink) writes session_<id>.dat in a configured
// directory; callers may supply any other Sink (e.g. a test capture,
// or an in-memory callback).
type Sink func(sessionID uint32, plaintext []byte) error

// FileSink builds a Sink that writes session_<id>.dat under dir, per
// spec.md §4.7 step 5 and §6's "reference sink."
func FileSink(dir string) Sink {
	return func(sessionID uint32, plaintext []byte) error {
		path := filepath.Join(dir, fmt.Sprintf("session_%d.dat", sessionID))
		return os.WriteFile(path, plaintext, 0644)
	}
}

// Finalizer assembles, decrypts, and delivers sessions on FIN.
type Finalizer struct {
	Registry *registry.Registry
	Sink     Sink

	// Archive, if non-nil, is handed a second copy of each session's
	// plaintext after the primary Sink succeeds. Spec.md §6 calls this
	// an implementation-specific parameterization of the reference
	// sink; MPAT exercises it as an optional secondary zstd-compressed
	// archival sink (see SPEC_FULL.md §4.7a). A failure here is logged
	// but never turns a successful primary delivery into an error.
	Archive Sink
}

// New builds a Finalizer over a registry and a primary sink.
func New(reg *registry.Registry, sink Sink) *Finalizer {
	return &Finalizer{Registry: reg, Sink: sink}
}

// Finalize reassembles and delivers the session named by sessionID.
// It always removes the session record from the registry before
// returning, per spec.md §4.7 step 6 and §3's "no session state
// outlives the Finalizer's release step" invariant.
func (f *Finalizer) Finalize(sessionID uint32) error {
	defer f.Registry.Delete(sessionID)

	key, iv, segments, hasKey, ok := f.Registry.Snapshot(sessionID)
	if !ok {
		return fmt.Errorf("%w: session_id=%d", ErrMissingSegments, sessionID)
	}
	if !hasKey {
		metrics.FinalizeOutcomeCounter.WithLabelValues("missing_segments").Inc()
		return fmt.Errorf("%w: session_id=%d", ErrNoKey, sessionID)
	}

	ciphertext, err := concatenate(segments)
	if err != nil {
		metrics.FinalizeOutcomeCounter.WithLabelValues("missing_segments").Inc()
		return fmt.Errorf("%w: session_id=%d: %v", ErrMissingSegments, sessionID, err)
	}

	plaintext, err := cryptutil.Decrypt(key, iv, ciphertext)
	if err != nil {
		metrics.FinalizeOutcomeCounter.WithLabelValues("decryption_failure").Inc()
		return fmt.Errorf("%w: session_id=%d: %v", ErrDecryptionFailure, sessionID, err)
	}

	if err := f.Sink(sessionID, plaintext); err != nil {
		metrics.FinalizeOutcomeCounter.WithLabelValues("sink_error").Inc()
		return fmt.Errorf("finalize: writing sink for session_id=%d: %w", sessionID, err)
	}

	if f.Archive != nil {
		if err := f.Archive(sessionID, plaintext); err != nil {
			logging.WithField("session_id", sessionID).Warnf("archival sink failed: %v", err)
		}
	}

	metrics.FinalizeOutcomeCounter.WithLabelValues("success").Inc()
	logging.WithField("session_id", sessionID).Infof("finalized session (%d bytes)", len(plaintext))
	return nil
}

// concatenate verifies that segments' indices are exactly {0, ..., N-1}
// and returns their bytes joined in ascending index order, per
// spec.md §4.7 steps 1-2 and §3's concatenation-order invariant.
func concatenate(segments map[uint32][]byte) ([]byte, error) {
	n := uint32(len(segments))
	total := 0
	for i := uint32(0); i < n; i++ {
		seg, ok := segments[i]
		if !ok {
			return nil, fmt.Errorf("missing index %d of %d", i, n)
		}
		total += len(seg)
	}
	out := make([]byte, 0, total)
	for i := uint32(0); i < n; i++ {
		out = append(out, segments[i]...)
	}
	return out, nil
}
