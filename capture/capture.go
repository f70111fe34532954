/*
Package capture provides the shared types and errors for AF_PACKET RX ring
capture sessions: the aggregate traffic counters exposed to callers and the
sentinel errors signalled via the event file descriptor of a running session.
*/
package capture

import "errors"

var (

	// ErrCaptureStopped denotes that the capture was stopped
	ErrCaptureStopped = errors.New("capture was stopped")

	// ErrCaptureUnblocked denotes that a blocking poll on the capture was released
	ErrCaptureUnblocked = errors.New("capture was released / unblocked")
)

// Stats denotes a packet capture stats structure providing basic counters
type Stats struct {
	PacketsReceived int
	PacketsDropped  int
	QueueFreezes    int
}
