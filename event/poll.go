//go:build linux
// +build linux

package event

import (
	"unsafe"

	"github.com/fako1024/ringcap/capture/afpacket/socket"
	"golang.org/x/sys/unix"
)

// Handler wraps a socket file descriptor and an event file descriptor in a
// single instance. It is populated by the ring setup sequence and handed to
// the consumption loop
type Handler struct {

	// Efd denotes the event file descriptor of this handler
	Efd EvtFileDescriptor

	// Fd denotes the socket file descriptor of this handler
	Fd socket.FileDescriptor
}

// Poll polls (blocking, hence no timeout) for events on the socket file
// descriptor and the event file descriptor. It returns whether the event file
// descriptor (as opposed to the socket) has an event pending
func (p *Handler) Poll(events int16) (hasEvent bool, errno unix.Errno) {
	pollEvents := [...]unix.PollFd{
		{
			Fd:     int32(p.Efd),
			Events: unix.POLLIN,
		},
		{
			Fd:     int32(p.Fd),
			Events: events,
		},
	}

	errno = pollBlock(&pollEvents[0], len(pollEvents))
	if errno == 0 && (pollEvents[1].Revents&unix.POLLHUP != 0 || pollEvents[1].Revents&unix.POLLERR != 0) {
		errno = unix.ECONNRESET
	}

	return pollEvents[0].Revents&unix.POLLIN != 0, errno
}

func pollBlock(fds *unix.PollFd, nfds int) unix.Errno {

	// #nosec: G103
	_, _, e := unix.Syscall6(unix.SYS_PPOLL, uintptr(unsafe.Pointer(fds)),
		uintptr(nfds), uintptr(unsafe.Pointer(nil)), 0, 0, 0)

	return e
}
