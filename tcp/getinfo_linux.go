//go:build linux

package tcp

import (
	"net"

	"golang.org/x/sys/unix"
)

// GetInfo reads the kernel's TCP_INFO structure for an established TCP
// connection via getsockopt. It is used only as a diagnostic
// enrichment (see spec.md §4.2a); a nil result or error here must
// never block or fail a channel exchange.
func GetInfo(conn *net.TCPConn) (*LinuxTCPInfo, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, err
	}
	var info *unix.TCPInfo
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		info, sockErr = unix.GetsockoptTCPInfo(int(fd), unix.IPPROTO_TCP, unix.TCP_INFO)
	})
	if err != nil {
		return nil, err
	}
	if sockErr != nil {
		return nil, sockErr
	}
	return &LinuxTCPInfo{
		State:   State(info.State),
		CAState: info.Ca_state,
		RTT:     info.Rtt,
		RTTVar:  info.Rttvar,
		SndCwnd: info.Snd_cwnd,
		SndMSS:  info.Snd_mss,
		RcvMSS:  info.Rcv_mss,
	}, nil
}
