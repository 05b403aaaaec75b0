// Package sender implements the Sender Session of spec.md §4.4: given
// a payload and a set of channels, it encrypts and segments the
// payload, concurrently dispatches every segment with per-segment
// retry, and closes the session with a FIN fan-out.
package sender

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/mpat-go/mpat/channel"
	"github.com/mpat-go/mpat/cryptutil"
	"github.com/mpat-go/mpat/frame"
	"github.com/mpat-go/mpat/logging"
	"github.com/mpat-go/mpat/metrics"
)

// DefaultSegmentSize is the fixed ciphertext segment size of spec.md §3.
const DefaultSegmentSize = 1024

// DefaultRetryLimit is the default retransmission_limit of spec.md §4.4 step 6.
const DefaultRetryLimit = 3

// NewRandomSessionID generates a fresh random 32-bit session identifier
// via crypto/rand. Spec.md §3's reference default (seconds since epoch
// truncated to 32 bits) collides across concurrent sessions started
// within the same second; §9 recommends a random id instead, which this
// package provides as the default for callers that don't supply their
// own.
func NewRandomSessionID() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("sender: generating session id: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// Record is one entry of a session's segment ledger: the outcome of
// dispatching a single segment, kept for reporting (see cmd/mpat-csv).
type Record struct {
	SessionID    uint32  `csv:"session_id"`
	SegmentIndex uint32  `csv:"segment_index"`
	Channel      string  `csv:"channel"`
	Attempts     int     `csv:"attempts"`
	Success      bool    `csv:"success"`
	LatencyMS    float64 `csv:"latency_ms"`
}

// Session drives one end-to-end transfer under a fresh (key, iv).
type Session struct {
	SessionID   uint32
	Endpoints   map[string]*channel.Endpoint
	Selector    *channel.Selector
	RetryLimit  int
	SegmentSize int

	ledgerMu sync.Mutex
	ledger   []Record
}

// NewSession builds a Session over the given endpoints, using
// DefaultRetryLimit and DefaultSegmentSize.
func NewSession(sessionID uint32, endpoints []*channel.Endpoint) *Session {
	epByName := make(map[string]*channel.Endpoint, len(endpoints))
	names := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		epByName[ep.Name] = ep
		names = append(names, ep.Name)
	}
	return &Session{
		SessionID:   sessionID,
		Endpoints:   epByName,
		Selector:    channel.NewSelector(names),
		RetryLimit:  DefaultRetryLimit,
		SegmentSize: DefaultSegmentSize,
	}
}

// Ledger returns a copy of the segment dispatch records accumulated so
// far, safe to call concurrently with Send.
func (s *Session) Ledger() []Record {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()
	return append([]Record(nil), s.ledger...)
}

func (s *Session) record(r Record) {
	s.ledgerMu.Lock()
	s.ledger = append(s.ledger, r)
	s.ledgerMu.Unlock()
}

// Send encrypts and segments payload, dispatches every segment
// concurrently with retry, then fans out FIN, per spec.md §4.4. It
// blocks until all segments resolve (success or retry exhaustion) and
// FIN has been dispatched; it never returns an error purely because
// some segments were lost, matching the "current behavior" preserved
// by spec.md §4.4's closing paragraph.
func (s *Session) Send(ctx context.Context, payload []byte) error {
	start := time.Now()
	defer func() { metrics.SessionDurationHistogram.Observe(time.Since(start).Seconds()) }()

	key, iv, err := cryptutil.NewKeyAndIV()
	if err != nil {
		return fmt.Errorf("sender: generating key/iv: %w", err)
	}
	ciphertext, err := cryptutil.Encrypt(key, iv, payload)
	if err != nil {
		return fmt.Errorf("sender: encrypting payload: %w", err)
	}

	if err := s.sendKeyToAll(ctx, key, iv); err != nil {
		return err
	}

	segments := splitSegments(ciphertext, s.SegmentSize)

	var wg sync.WaitGroup
	for index, segment := range segments {
		wg.Add(1)
		go func(index uint32, segment []byte) {
			defer wg.Done()
			s.dispatchSegment(ctx, index, segment)
		}(uint32(index), segment)
	}
	wg.Wait()

	s.sendFinToAll(ctx)
	return nil
}

// sendKeyToAll fans the KEY frame out to every channel concurrently.
// Failures on a subset are logged but do not abort the session
// provided at least one KEY exchange succeeded, per spec.md §4.4 step 3.
func (s *Session) sendKeyToAll(ctx context.Context, key, iv [16]byte) error {
	kf := frame.KeyFrame{SessionID: s.SessionID, Key: key, IV: iv}
	encoded := kf.Encode()

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for _, name := range s.Selector.Names() {
		wg.Add(1)
		go func(ep *channel.Endpoint) {
			defer wg.Done()
			resp, latency, err := ep.SendAndAwait(ctx, encoded)
			if err != nil || !frame.IsAck(resp) {
				logging.WithField("channel", ep.Name).Warnf("KEY exchange failed: %v", err)
				return
			}
			s.Selector.Update(ep.Name, latency, len(encoded))
			mu.Lock()
			successes++
			mu.Unlock()
		}(s.Endpoints[name])
	}
	wg.Wait()

	if successes == 0 {
		return fmt.Errorf("sender: KEY exchange failed on every channel for session_id=%d", s.SessionID)
	}
	return nil
}

// sendFinToAll fans FIN out to every channel and awaits ACK from each,
// per spec.md §4.4 step 7. Failures are logged; FIN delivery failure
// on a subset of channels does not change the return value of Send,
// matching the reference behavior.
func (s *Session) sendFinToAll(ctx context.Context) {
	ff := frame.FinFrame{SessionID: s.SessionID}
	encoded := ff.Encode()

	var wg sync.WaitGroup
	for _, name := range s.Selector.Names() {
		wg.Add(1)
		go func(ep *channel.Endpoint) {
			defer wg.Done()
			resp, _, err := ep.SendAndAwait(ctx, encoded)
			if err != nil || !frame.IsAck(resp) {
				logging.WithField("channel", ep.Name).Warnf("FIN exchange failed: %v", err)
			}
		}(s.Endpoints[name])
	}
	wg.Wait()
}

// dispatchSegment selects a channel via the Selector, sends the
// segment, and retries on NACK or error up to RetryLimit attempts,
// re-invoking the selector each attempt per spec.md §4.4 step 6.
func (s *Session) dispatchSegment(ctx context.Context, index uint32, ciphertext []byte) {
	checksum := sha256.Sum256(ciphertext)
	df := frame.DataFrame{SessionID: s.SessionID, SegmentIndex: index, Checksum: checksum, Ciphertext: ciphertext}
	encoded, err := df.Encode()
	if err != nil {
		// A reserved-index collision is a construction bug, not a
		// transport failure; it cannot be retried away.
		logging.WithField("session_id", s.SessionID).Errorf("segment %d: %v", index, err)
		return
	}

	var chosen string
	attempts := 0
	for attempts = 0; attempts < s.RetryLimit; attempts++ {
		chosen = s.Selector.Choose()
		ep := s.Endpoints[chosen]

		resp, measured, sendErr := ep.SendAndAwait(ctx, encoded)
		if sendErr != nil {
			metrics.SegmentAttemptsCounter.WithLabelValues(chosen, "error").Inc()
			continue
		}
		if frame.IsAck(resp) {
			metrics.SegmentAttemptsCounter.WithLabelValues(chosen, "ack").Inc()
			s.Selector.Update(chosen, measured, len(encoded))
			s.record(Record{SessionID: s.SessionID, SegmentIndex: index, Channel: chosen, Attempts: attempts + 1, Success: true, LatencyMS: measured.Seconds() * 1000})
			return
		}
		metrics.SegmentAttemptsCounter.WithLabelValues(chosen, "nack").Inc()
	}

	metrics.SegmentRetryExhaustedCounter.Inc()
	logging.WithField("session_id", s.SessionID).Warnf("segment %d exhausted its retry budget on channel %s", index, chosen)
	s.record(Record{SessionID: s.SessionID, SegmentIndex: index, Channel: chosen, Attempts: attempts, Success: false})
}

// splitSegments divides ciphertext into fixed-size chunks of size,
// with the final chunk possibly shorter, per spec.md §3.
func splitSegments(ciphertext []byte, size int) [][]byte {
	if len(ciphertext) == 0 {
		return nil
	}
	segments := make([][]byte, 0, (len(ciphertext)+size-1)/size)
	for off := 0; off < len(ciphertext); off += size {
		end := off + size
		if end > len(ciphertext) {
			end = len(ciphertext)
		}
		segments = append(segments, ciphertext[off:end])
	}
	return segments
}
