//go:build !linux

package connid

import (
	"crypto/rand"
	"encoding/hex"
	"net"
)

// FromTCPConn returns a correlation id string for the given TCP
// connection. Non-Linux platforms have no SO_COOKIE, so a random id is
// used instead; it serves the same log-correlation purpose.
func FromTCPConn(t *net.TCPConn) (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
