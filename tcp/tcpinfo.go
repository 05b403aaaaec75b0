// Package tcp provides TCP state constants and the kernel TCP_INFO
// struct MPAT uses to enrich a channel's measured latency with the
// kernel's own view of round-trip time, where available.
package tcp

// LinuxTCPInfo holds the subset of the kernel's struct tcp_info
// (https://git.kernel.org/pub/scm/linux/kernel/git/torvalds/linux.git/tree/include/uapi/linux/tcp.h)
// that GetInfo actually populates. channel.Endpoint.SendAndAwait logs
// it and exports its RTT as a metric. It carries CSV tags, but nothing
// marshals it: cmd/mpat-csv reports sender.Record entries only.
type LinuxTCPInfo struct {
	State   State  `csv:"TCP.State"`
	CAState uint8  `csv:"TCP.CAState"`
	RTT     uint32 `csv:"TCP.RTT"`
	RTTVar  uint32 `csv:"TCP.RTTVar"`
	SndCwnd uint32 `csv:"TCP.SndCwnd"`
	SndMSS  uint32 `csv:"TCP.SndMSS"`
	RcvMSS  uint32 `csv:"TCP.RcvMSS"`
}
