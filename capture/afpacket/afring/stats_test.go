//go:build linux
// +build linux

package afring

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fako1024/ringcap/capture"
	"github.com/fako1024/ringcap/capture/afpacket/socket"
	"github.com/stretchr/testify/require"
)

func TestStatsOutputV3(t *testing.T) {

	buf := bytes.NewBuffer(nil)
	writeStats(buf, socket.TPacketV3, socket.TPacketStatsV3{Packets: 1000, Drops: 50}, 900)

	// On V3 the kernel counter covers everything that entered the ring, so the
	// consumed count is reported as incoming and the rest as unread
	require.Equal(t,
		"         900  packets incoming (100 unread on exit)\n"+
			"         950  packets passed filter\n"+
			"          50  packets failed filter (out of space)\n"+
			"      5.0000% packet droprate\n",
		buf.String())
}

func TestStatsOutputV2(t *testing.T) {

	buf := bytes.NewBuffer(nil)
	writeStats(buf, socket.TPacketV2, socket.TPacketStatsV3{Packets: 1000, Drops: 50}, 900)

	// On V2 the kernel counter is what was seen, nothing is reported unread
	require.Equal(t,
		"        1000  packets incoming (0 unread on exit)\n"+
			"         950  packets passed filter\n"+
			"          50  packets failed filter (out of space)\n"+
			"      5.0000% packet droprate\n",
		buf.String())
}

func TestStatsNoPacketsOmitsDroprate(t *testing.T) {

	buf := bytes.NewBuffer(nil)
	writeStats(buf, socket.TPacketV3, socket.TPacketStatsV3{}, 0)

	require.Equal(t,
		"           0  packets incoming (0 unread on exit)\n"+
			"           0  packets passed filter\n"+
			"           0  packets failed filter (out of space)\n",
		buf.String())
}

func TestStatsCounters(t *testing.T) {

	orig := getSocketStats
	t.Cleanup(func() {
		getSocketStats = orig
	})
	getSocketStats = func(_ socket.FileDescriptor, _ socket.TPacketVersion) (socket.TPacketStatsV3, error) {
		return socket.TPacketStatsV3{Packets: 1000, Drops: 50, QueueFreezes: 2}, nil
	}

	r := New()
	r.layout.version = socket.TPacketV3

	stats, err := r.Stats(socket.FileDescriptor(1))
	require.Nil(t, err)
	require.Equal(t, capture.Stats{
		PacketsReceived: 1000,
		PacketsDropped:  50,
		QueueFreezes:    2,
	}, stats)
}

func TestStatsCountersQueryError(t *testing.T) {

	orig := getSocketStats
	t.Cleanup(func() {
		getSocketStats = orig
	})
	getSocketStats = func(_ socket.FileDescriptor, _ socket.TPacketVersion) (socket.TPacketStatsV3, error) {
		return socket.TPacketStatsV3{}, errors.New("invalid socket")
	}

	// Unlike the report paths, the counter accessor surfaces the query error
	r := New()
	stats, err := r.Stats(socket.FileDescriptor(1))
	require.EqualError(t, err, "invalid socket")
	require.Zero(t, stats)
}

func TestStatsQueryFailureProducesNoOutput(t *testing.T) {

	r := New()
	r.layout.version = socket.TPacketV3

	// A query on an invalid socket fails, which is swallowed (statistics are
	// diagnostic, not load-bearing)
	buf := bytes.NewBuffer(nil)
	r.WriteStats(buf, socket.FileDescriptor(-1), 0)
	require.Zero(t, buf.Len())
}
