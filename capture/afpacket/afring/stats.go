//go:build linux
// +build linux

package afring

import (
	"fmt"
	"io"
	"os"

	"github.com/fako1024/ringcap/capture"
	"github.com/fako1024/ringcap/capture/afpacket/socket"
)

// Seam around the kernel counter query, replaceable in tests alongside the
// ring lifecycle seams
var getSocketStats = func(sd socket.FileDescriptor, version socket.TPacketVersion) (socket.TPacketStatsV3, error) {
	return sd.GetSocketStats(version)
}

// WriteStats queries the kernel traffic counters for the socket and writes a
// human-readable capture summary to w. The two ABI generations disagree on what
// counts as "seen": the V3 kernel counter covers every packet that entered the
// ring, so the number actually consumed by the reader (seen) is reported as
// incoming and the remainder as unread. Statistics are diagnostic only: a
// failing counter query produces no output and no error
func (r *Ring) WriteStats(w io.Writer, sd socket.FileDescriptor, seen uint64) {

	ss, err := getSocketStats(sd, r.layout.version)
	if err != nil {
		return
	}

	writeStats(w, r.layout.version, ss, seen)
}

// ReportStats prints the capture summary for the socket to standard output,
// deriving the ring ABI generation from the socket (for callers without a ring
// descriptor at hand)
func ReportStats(sd socket.FileDescriptor, seen uint64) {

	version := sd.GetTPacketVersion()
	ss, err := getSocketStats(sd, version)
	if err != nil {
		return
	}

	writeStats(os.Stdout, version, ss, seen)
}

// Stats returns (and clears) the packet counters of the underlying socket
func (r *Ring) Stats(sd socket.FileDescriptor) (capture.Stats, error) {

	ss, err := getSocketStats(sd, r.layout.version)
	if err != nil {
		return capture.Stats{}, err
	}

	return capture.Stats{
		PacketsReceived: int(ss.Packets),
		PacketsDropped:  int(ss.Drops),
		QueueFreezes:    int(ss.QueueFreezes),
	}, nil
}

func writeStats(w io.Writer, version socket.TPacketVersion, ss socket.TPacketStatsV3, seen uint64) {

	var (
		packets = uint64(ss.Packets)
		drops   = uint64(ss.Drops)

		incoming = packets
		unread   uint64
	)
	if version == socket.TPacketV3 {
		incoming, unread = seen, packets-seen
	}

	fmt.Fprintf(w, "%12d  packets incoming (%d unread on exit)\n", incoming, unread)
	fmt.Fprintf(w, "%12d  packets passed filter\n", packets-drops)
	fmt.Fprintf(w, "%12d  packets failed filter (out of space)\n", drops)
	if packets > 0 {
		fmt.Fprintf(w, "%12.4f%% packet droprate\n", float64(drops)/float64(packets)*100.)
	}
}
