//go:build linux
// +build linux

package socket

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

// MockFileDescriptor denotes a mock file descriptor mimicking the behavior of an
// AF_PACKET socket by means of using a simple event file descriptor instead. It
// tracks the negotiated ring ABI generation and simulated traffic counters so
// that version detection and statistics retrieval can be exercised without an
// actual capture
type MockFileDescriptor struct {
	FileDescriptor

	version TPacketVersion

	sync.Mutex
	nPacketsProcessed uint32
	nPacketsDropped   uint32
	nQueueFreezes     uint32
}

// NewMock instantiates a new mock file descriptor (defaulting to the older ring
// ABI generation, just like an actual socket prior to version negotiation)
func NewMock() (*MockFileDescriptor, error) {
	sd, err := unix.Eventfd(0, unix.EFD_SEMAPHORE)
	if err != nil {
		return &MockFileDescriptor{
			FileDescriptor: -1,
		}, err
	}

	return &MockFileDescriptor{
		FileDescriptor: FileDescriptor(sd),
		version:        TPacketV2,
	}, nil
}

// GetTPacketVersion returns the simulated ring ABI generation
func (m *MockFileDescriptor) GetTPacketVersion() TPacketVersion {
	return m.version
}

// SetTPacketVersion tracks the simulated ring ABI generation
func (m *MockFileDescriptor) SetTPacketVersion(version TPacketVersion) error {
	if m.FileDescriptor <= 0 {
		return errors.New("invalid socket")
	}

	m.version = version
	return nil
}

// IncrementPacketCount allows for simulation of packet / traffic statistics by
// means of manual counting (to be used during population of a mock data source)
func (m *MockFileDescriptor) IncrementPacketCount(delta uint32) {
	m.Lock()
	m.nPacketsProcessed += delta
	m.Unlock()
}

// IncrementDropCount allows for simulation of packet drops due to ring buffer
// exhaustion
func (m *MockFileDescriptor) IncrementDropCount(delta uint32) {
	m.Lock()
	m.nPacketsDropped += delta
	m.Unlock()
}

// IncrementQueueFreezeCount allows for simulation of ring queue freezes (only
// reported for the newer ring ABI generation)
func (m *MockFileDescriptor) IncrementQueueFreezeCount(delta uint32) {
	m.Lock()
	m.nQueueFreezes += delta
	m.Unlock()
}

// GetSocketStats returns (and resets) the simulated socket / traffic statistics
func (m *MockFileDescriptor) GetSocketStats(version TPacketVersion) (ss TPacketStatsV3, err error) {

	if m.FileDescriptor <= 0 {
		err = errors.New("invalid socket")
		return
	}

	m.Lock()
	ss = TPacketStatsV3{
		Packets: m.nPacketsProcessed,
		Drops:   m.nPacketsDropped,
	}
	if version == TPacketV3 {
		ss.QueueFreezes = m.nQueueFreezes
	}
	m.nPacketsProcessed = 0
	m.nPacketsDropped = 0
	m.nQueueFreezes = 0
	m.Unlock()

	return
}
