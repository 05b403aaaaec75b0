// Package receiver implements the Receiver Endpoint of spec.md §4.5:
// it binds a listening socket on each channel's address, accepts
// connections concurrently, and dispatches every inbound frame to the
// Registry, replying ACK or NACK.
package receiver

import (
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/mpat-go/mpat/config"
	"github.com/mpat-go/mpat/connid"
	"github.com/mpat-go/mpat/finalize"
	"github.com/mpat-go/mpat/frame"
	"github.com/mpat-go/mpat/logging"
	"github.com/mpat-go/mpat/registry"
)

// Receiver binds a listener per channel and dispatches inbound frames
// to a shared Registry and Finalizer.
type Receiver struct {
	Registry  *registry.Registry
	Finalizer *finalize.Finalizer

	servingWG sync.WaitGroup
}

// New builds a Receiver over the given Finalizer and its Registry. If
// the Finalizer has no Registry, a fresh one is created and set on it.
func New(fin *finalize.Finalizer) *Receiver {
	reg := fin.Registry
	if reg == nil {
		reg = registry.New()
		fin.Registry = reg
	}
	return &Receiver{Registry: reg, Finalizer: fin}
}

// Serve binds a listener on every channel's address and accepts
// connections on each concurrently until ctx is cancelled, per spec.md
// §6's "start(channels) binds all listeners and serves until
// externally cancelled." It blocks until every accept loop has
// returned.
func (r *Receiver) Serve(ctx context.Context, channels []config.Channel) error {
	if err := config.ValidateChannels(channels); err != nil {
		return err
	}

	derivedCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	listeners := make([]net.Listener, 0, len(channels))
	for _, c := range channels {
		ln, err := net.Listen("tcp", c.Addr())
		if err != nil {
			for _, opened := range listeners {
				opened.Close()
			}
			return err
		}
		listeners = append(listeners, ln)
	}

	r.servingWG.Add(1)
	go func() {
		defer r.servingWG.Done()
		<-derivedCtx.Done()
		for _, ln := range listeners {
			ln.Close()
		}
	}()

	for i, c := range channels {
		r.servingWG.Add(1)
		go r.acceptLoop(derivedCtx, listeners[i], c.Name)
	}

	r.servingWG.Wait()
	return nil
}

// acceptLoop accepts connections on one channel's listener until it is
// closed (by Serve's context-cancel goroutine), handling each
// connection in its own goroutine so a slow peer on one channel never
// blocks another, per spec.md §4.5 and §5's suspension-granularity
// requirement.
func (r *Receiver) acceptLoop(ctx context.Context, ln net.Listener, channelName string) {
	defer r.servingWG.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.WithField("channel", channelName).Warnf("accept failed: %v", err)
			return
		}
		r.servingWG.Add(1)
		go func() {
			defer r.servingWG.Done()
			r.handleConn(conn, channelName)
		}()
	}
}

// handleConn reads framed messages from one connection until the peer
// closes it, dispatching each to the Registry or Finalizer and writing
// the corresponding ACK/NACK. Connection termination by the peer is
// expected and not logged as an error; any other I/O error drops just
// this connection, per spec.md §4.5.
func (r *Receiver) handleConn(conn net.Conn, channelName string) {
	defer conn.Close()

	id := "unknown"
	if tc, ok := conn.(*net.TCPConn); ok {
		if got, err := connid.FromTCPConn(tc); err == nil {
			id = got
		}
	}
	log := logging.WithField("channel", channelName).WithField("conn", id)

	for {
		f, err := frame.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			log.Debugf("frame read ended: %v", err)
			return
		}

		switch v := f.(type) {
		case frame.KeyFrame:
			r.Registry.StoreKey(v.SessionID, v.Key, v.IV)
			writeResponse(conn, frame.AckToken, log)

		case frame.FinFrame:
			writeResponse(conn, frame.AckToken, log)
			go func(sessionID uint32) {
				if err := r.Finalizer.Finalize(sessionID); err != nil {
					log.WithField("session_id", sessionID).Infof("finalize: %v", err)
				}
			}(v.SessionID)
			return

		case frame.DataFrame:
			sum := sha256.Sum256(v.Ciphertext)
			if sum != v.Checksum {
				writeResponse(conn, frame.NackToken, log)
				continue
			}
			if err := r.Registry.StoreSegment(v.SessionID, v.SegmentIndex, v.Ciphertext); err != nil {
				log.WithField("session_id", v.SessionID).Warnf("store_segment: %v", err)
				writeResponse(conn, frame.NackToken, log)
				continue
			}
			writeResponse(conn, frame.AckToken, log)
		}
	}
}

func writeResponse(conn net.Conn, token [4]byte, log logEntry) {
	if _, err := conn.Write(token[:]); err != nil {
		log.Debugf("write response failed: %v", err)
	}
}

// logEntry is the minimal surface this package needs from a logrus
// entry, so writeResponse does not have to import logrus directly.
type logEntry interface {
	Debugf(string, ...interface{})
}
