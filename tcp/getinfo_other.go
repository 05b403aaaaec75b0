//go:build !linux

package tcp

import "net"

// GetInfo is a no-op on non-Linux platforms: TCP_INFO enrichment is a
// diagnostic nicety (spec.md §4.2a), never a correctness requirement.
func GetInfo(conn *net.TCPConn) (*LinuxTCPInfo, error) {
	return nil, nil
}
