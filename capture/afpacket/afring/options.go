//go:build linux
// +build linux

package afring

import "github.com/fako1024/ringcap/capture/afpacket/socket"

// Option denotes a functional option for the Ring
type Option func(*Ring)

// BufferSize sets the requested total size of the ring buffer in bytes. The
// kernel may grant less under memory pressure (the block count degrades in
// powers of two during negotiation)
func BufferSize(size int) Option {
	return func(r *Ring) {
		r.size = size
	}
}

// JumboFrames switches the layout to the jumbo frame sizing profile (larger
// blocks / frames to accommodate oversized packets)
func JumboFrames(enable bool) Option {
	return func(r *Ring) {
		r.jumbo = enable
	}
}

// Version selects the ring ABI generation to negotiate with the kernel
func Version(version socket.TPacketVersion) Option {
	return func(r *Ring) {
		r.version = version
	}
}

// Verbose enables a one-line summary of the granted ring geometry after
// negotiation
func Verbose(enable bool) Option {
	return func(r *Ring) {
		r.verbose = enable
	}
}
