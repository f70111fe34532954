//go:build linux
// +build linux

package socket

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockBasicInteraction(t *testing.T) {

	sock, err := NewMock()
	require.Nil(t, err)
	require.True(t, sock.IsOpen())

	sock.IncrementPacketCount(1)

	stats, err := sock.GetSocketStats(TPacketV2)
	require.Nil(t, err)
	require.EqualValues(t, TPacketStatsV3{Packets: 1}, stats)

	require.Nil(t, sock.Close())
	require.False(t, sock.IsOpen())
}

func TestMockVersionNegotiation(t *testing.T) {

	sock, err := NewMock()
	require.Nil(t, err)
	defer func() {
		require.Nil(t, sock.Close())
	}()

	// Prior to negotiation the older generation is in effect
	require.Equal(t, TPacketV2, sock.GetTPacketVersion())

	require.Nil(t, sock.SetTPacketVersion(TPacketV3))
	require.Equal(t, TPacketV3, sock.GetTPacketVersion())

	require.Nil(t, sock.SetTPacketVersion(TPacketV2))
	require.Equal(t, TPacketV2, sock.GetTPacketVersion())
}

func TestMockStatsReset(t *testing.T) {

	sock, err := NewMock()
	require.Nil(t, err)
	defer func() {
		require.Nil(t, sock.Close())
	}()

	sock.IncrementPacketCount(1000)
	sock.IncrementDropCount(50)
	sock.IncrementQueueFreezeCount(2)

	stats, err := sock.GetSocketStats(TPacketV3)
	require.Nil(t, err)
	require.EqualValues(t, TPacketStatsV3{Packets: 1000, Drops: 50, QueueFreezes: 2}, stats)

	// Retrieval resets the counters
	stats, err = sock.GetSocketStats(TPacketV3)
	require.Nil(t, err)
	require.EqualValues(t, TPacketStatsV3{}, stats)
}

func TestInvalidSocket(t *testing.T) {

	sd := FileDescriptor(-1)

	require.EqualError(t, sd.Bind(1), "invalid socket")
	require.EqualError(t, sd.SetTPacketVersion(TPacketV3), "invalid socket")

	_, err := sd.GetSocketStats(TPacketV3)
	require.EqualError(t, err, "invalid socket")

	// Version detection must degrade to the older generation, never error
	require.Equal(t, TPacketV2, sd.GetTPacketVersion())
}

func TestVersionString(t *testing.T) {
	require.Equal(t, "V2", TPacketV2.String())
	require.Equal(t, "V3", TPacketV3.String())
}

func TestHtons(t *testing.T) {
	require.Equal(t, 0x0300, htons(0x0003))
	require.Equal(t, 0x0008, htons(0x0800))
}
