//go:build linux
// +build linux

/*
Package socket implements the AF_PACKET sockets underlying the RX ring capture.
It covers raw socket allocation, TPacket version negotiation (the kernel supports
two mutually incompatible ring ABI generations), the PACKET_RX_RING socket option
used to request / release a ring and retrieval of capture statistics for the
underlying network interface.
*/
package socket

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/fako1024/ringcap/link"
	"golang.org/x/sys/unix"
)

// FileDescriptor denotes a generic system level file descriptor (an int)
type FileDescriptor int

// TPacketVersion denotes the kernel ring buffer ABI generation in effect
// on a socket
type TPacketVersion int

const (

	// TPacketV2 denotes the older, frame-based ring ABI (tpacket_req layout)
	TPacketV2 = TPacketVersion(unix.TPACKET_V2)

	// TPacketV3 denotes the newer, block-based ring ABI with deferred block
	// retirement (tpacket_req3 layout)
	TPacketV3 = TPacketVersion(unix.TPACKET_V3)
)

// String returns a human-readable representation of the ring ABI generation
func (v TPacketVersion) String() string {
	if v == TPacketV3 {
		return "V3"
	}
	return "V2"
}

// TPacketStats denotes the V2 tpacket_stats structure, c.f.
// https://github.com/torvalds/linux/blob/master/include/uapi/linux/if_packet.h
type TPacketStats struct {
	Packets uint32
	Drops   uint32
}

// TPacketStatsV3 denotes the V3 tpacket_stats_v3 structure (a superset of the
// V2 one, adding the queue freeze counter). Since the kernel fills the leading
// fields identically for both generations it doubles as the union-sized query
// buffer for either ABI.
type TPacketStatsV3 struct {
	Packets      uint32
	Drops        uint32
	QueueFreezes uint32
}

// New instantiates a new raw AF_PACKET socket capturing all ethernet protocols.
// The socket is not yet bound to any interface (binding happens as part of the
// ring setup sequence)
func New() (FileDescriptor, error) {

	sd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, htons(unix.ETH_P_ALL))
	if err != nil {
		return -1, err
	}

	return FileDescriptor(sd), nil
}

// Bind binds the socket to the interface denoted by ifIndex, activating packet
// reception on the (already negotiated and mapped) ring
func (sd FileDescriptor) Bind(ifIndex int) error {

	if sd <= 0 {
		return errors.New("invalid socket")
	}

	return unix.Bind(int(sd), &unix.SockaddrLinklayer{
		Protocol: uint16(htons(unix.ETH_P_ALL)),
		Ifindex:  ifIndex,
	})
}

// GetTPacketVersion returns the ring ABI generation currently active on the
// socket. Pure query without failure path: if PACKET_VERSION cannot be read
// (e.g. on kernels without V3 support) the older generation is reported
func (sd FileDescriptor) GetTPacketVersion() TPacketVersion {

	v, err := unix.GetsockoptInt(int(sd), unix.SOL_PACKET, unix.PACKET_VERSION)
	if err != nil || TPacketVersion(v) != TPacketV3 {
		return TPacketV2
	}

	return TPacketV3
}

// SetTPacketVersion switches the socket into ring mode for the provided ABI
// generation
func (sd FileDescriptor) SetTPacketVersion(version TPacketVersion) error {

	if sd <= 0 {
		return errors.New("invalid socket")
	}

	if err := unix.SetsockoptInt(int(sd), unix.SOL_PACKET, unix.PACKET_VERSION, int(version)); err != nil {
		return fmt.Errorf("failed to set TPacket version %s: %w", version, err)
	}

	return nil
}

// GetSocketStats returns (and resets) socket / traffic statistics. The query
// buffer is sized for the larger (V3) statistics structure, the socklen passed
// to the kernel is chosen according to the ABI generation
func (sd FileDescriptor) GetSocketStats(version TPacketVersion) (ss TPacketStatsV3, err error) {

	if sd <= 0 {
		err = errors.New("invalid socket")
		return
	}

	sockLen := unsafe.Sizeof(ss) // #nosec: G103
	if version != TPacketV3 {
		sockLen = unsafe.Sizeof(TPacketStats{}) // #nosec: G103
	}
	err = getsockopt(sd, unix.SOL_PACKET, unix.PACKET_STATISTICS, unsafe.Pointer(&ss), uintptr(unsafe.Pointer(&sockLen))) // #nosec: G103

	return
}

// RequestRingBuffer performs a call via setsockopt() to submit a ring layout to
// the kernel (allocating the mmap'able ring). Submitting an all-zero layout of
// V2 request length releases a previously allocated V2 ring
func (sd FileDescriptor) RequestRingBuffer(val unsafe.Pointer, vallen uintptr) error {
	return setsockopt(sd, unix.SOL_PACKET, unix.PACKET_RX_RING, val, vallen)
}

// SetSocketOptions sets the ancillary socket options required ahead of ring
// setup (promiscuous mode and the baseline per-link-type BPF filter)
func (sd FileDescriptor) SetSocketOptions(iface *link.Link, snapLen int, promisc bool) error {

	if sd <= 0 {
		return errors.New("invalid socket")
	}

	// If the source is in promiscuous mode, set the required flag
	if promisc {
		mReq := unix.PacketMreq{
			Ifindex: int32(iface.Index),
			Type:    unix.PACKET_MR_PROMISC,
		}
		// #nosec: G103
		reqLen := unsafe.Sizeof(mReq)
		// #nosec: G103
		if err := setsockopt(sd, unix.SOL_SOCKET, unix.PACKET_ADD_MEMBERSHIP, unsafe.Pointer(&mReq), uintptr(unsafe.Pointer(&reqLen))); err != nil {
			return fmt.Errorf("failed to set promiscuous mode: %w", err)
		}
	}

	// Set baseline BPF filters to select only packets with a valid IP header and set the correct snaplen
	if bpfFilterFn := iface.Type.BPFFilter(); bpfFilterFn != nil {
		var (
			p               unix.SockFprog
			bfpInstructions = bpfFilterFn(snapLen)
		)
		p.Len = uint16(len(bfpInstructions))
		if p.Len != 0 {
			// #nosec: G103
			p.Filter = (*unix.SockFilter)(unsafe.Pointer(&bfpInstructions[0]))
			// #nosec: G103
			if err := setsockopt(sd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, unsafe.Pointer(&p), unix.SizeofSockFprog); err != nil {
				return fmt.Errorf("failed to set BPF filter: %w", err)
			}
		}
	}

	return nil
}

// Close closes the file descriptor
func (sd FileDescriptor) Close() error {
	return unix.Close(int(sd))
}

// IsOpen determines if the file descriptor is open / valid
func (sd FileDescriptor) IsOpen() bool {
	_, err := unix.FcntlInt(uintptr(sd), unix.F_GETFD, 0)
	return err == nil
}

/////////////////////////////////////////////////////////////////////////////////////////

func getsockopt(fd FileDescriptor, level, name int, val unsafe.Pointer, vallen uintptr) error {
	if _, _, errno := unix.Syscall6(unix.SYS_GETSOCKOPT, uintptr(fd), uintptr(level), uintptr(name), uintptr(val), vallen, 0); errno != 0 {
		return error(errno)
	}

	return nil
}

func setsockopt(fd FileDescriptor, level, name int, val unsafe.Pointer, vallen uintptr) error {
	if _, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT, uintptr(fd), uintptr(level), uintptr(name), uintptr(val), vallen, 0); errno != 0 {
		return error(errno)
	}

	return nil
}

func htons(v uint16) int {
	return int((v << 8) | (v >> 8))
}
