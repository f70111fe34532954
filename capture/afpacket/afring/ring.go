//go:build linux
// +build linux

/*
Package afring implements the lifecycle of the mmap'ed AF_PACKET RX ring buffer
shared with the kernel: computing a ring layout for either of the two TPacket
ABI generations, negotiating the allocation with the kernel (degrading the block
count under memory pressure), mapping the granted region, binding it to a
network interface and tearing everything down again. It also renders the capture
statistics tracked by the kernel for the ring's socket.

The ring memory itself is kernel-owned content mapped into the process: the
kernel writes frame headers and payload into it asynchronously as packets
arrive, the consumer only reads it. The caller must quiesce any consumer before
calling Teardown.
*/
package afring

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fako1024/ringcap/capture"
	"github.com/fako1024/ringcap/capture/afpacket/socket"
	"github.com/fako1024/ringcap/event"
	"golang.org/x/sys/unix"
)

const (

	// DefaultRingSize denotes the default requested total ring size
	DefaultRingSize = 4 * (1 << 20) // 4 MiB
)

// ErrRingNotFresh denotes an attempt to set up a ring descriptor that has
// already been through (part of) its lifecycle
var ErrRingNotFresh = errors.New("ring descriptor already used, instantiate a fresh one")

type ringState uint8

const (
	stateUnconfigured ringState = iota
	stateLaidOut
	stateNegotiated
	stateMapped
	stateBound
	stateActive
	stateTornDown
)

// Collaborator seams around the kernel interactions of the ring lifecycle,
// replaceable in tests to simulate kernel behavior (most notably the ENOMEM
// degradation during negotiation)
var (
	setRingVersion = func(sd socket.FileDescriptor, version socket.TPacketVersion) error {
		return sd.SetTPacketVersion(version)
	}
	allocRing = func(sd socket.FileDescriptor, layout *ringLayout) error {
		ptr, n := layout.req()
		return sd.RequestRingBuffer(ptr, n)
	}
	mapRing = func(sd socket.FileDescriptor, length int) ([]byte, error) {
		return unix.Mmap(int(sd), 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	}
	unmapRing = func(mem []byte) error {
		return unix.Munmap(mem)
	}
	bindRing = func(sd socket.FileDescriptor, ifIndex int) error {
		return sd.Bind(ifIndex)
	}
)

// Ring denotes an RX ring descriptor. Its layout variant is established once
// during Setup() and immutable afterwards, the mapped region and frame table
// are attached during the same call and consumed again by Teardown()
type Ring struct {
	layout ringLayout

	ring   []byte // kernel-owned content, process-mapped
	mmLen  int
	frames [][]byte

	state ringState

	// Configuration (set at instantiation, not touched by the lifecycle)
	size    int
	jumbo   bool
	verbose bool
	version socket.TPacketVersion
}

// New instantiates a new RX ring descriptor
func New(options ...Option) *Ring {

	r := &Ring{
		size:    DefaultRingSize,
		version: socket.TPacketV3,
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Setup performs the full one-shot ring setup sequence: layout computation
// (including the version-appropriate switch of the socket into ring mode),
// negotiation with the kernel, memory mapping, frame table construction,
// interface binding and polling descriptor preparation. The steps are strictly
// ordered and the first failure aborts the whole setup (no rollback, a capture
// session cannot continue without its ring)
func (r *Ring) Setup(sd socket.FileDescriptor, ifIndex int, hdl *event.Handler) error {

	if r.state != stateUnconfigured {
		return ErrRingNotFresh
	}

	if err := r.setupLayout(sd); err != nil {
		return err
	}
	if err := r.createRing(sd); err != nil {
		return err
	}

	mem, err := mapRing(sd, r.mmLen)
	if err != nil {
		return fmt.Errorf("failed to set up mmap'ed ring buffer: %w", err)
	}
	r.ring = mem
	r.state = stateMapped

	r.buildFrameTable()

	if err := bindRing(sd, ifIndex); err != nil {
		return fmt.Errorf("failed to bind RX ring to interface index %d: %w", ifIndex, err)
	}
	r.state = stateBound

	// Prepare the polling descriptor handed to the consumption loop
	efd, err := event.New()
	if err != nil {
		return fmt.Errorf("failed to setup event file descriptor: %w", err)
	}
	hdl.Efd = efd
	hdl.Fd = sd

	r.state = stateActive
	return nil
}

// Teardown unmaps the ring and releases the frame table. For the older ABI
// generation the kernel is additionally asked to release the ring explicitly
// (the newer generation's ring is reclaimed when the socket is closed). To be
// called exactly once, after the consumer has quiesced
func (r *Ring) Teardown(sd socket.FileDescriptor) error {

	if r.state != stateActive {
		return errors.New("cannot tear down ring that is not active")
	}

	if r.ring != nil {
		if err := unmapRing(r.ring); err != nil {
			return fmt.Errorf("cannot unmap RX ring: %w", err)
		}
		r.ring = nil
	}
	r.mmLen = 0
	r.frames = nil

	// In general, the V3 ring is freed during close() anyway
	if r.layout.version == socket.TPacketV3 {
		r.state = stateTornDown
		return nil
	}

	// The V2 ring has to be released explicitly by submitting an all-zero
	// layout. If even that fails the ring is in an indeterminate state
	r.layout.v2 = tPacketRequest{}
	if err := allocRing(sd, &r.layout); err != nil {
		return fmt.Errorf("cannot destroy RX ring: %w", err)
	}

	r.state = stateTornDown
	return nil
}

// MappedLength returns the length of the kernel-backed memory mapping (granted
// block size x granted block count)
func (r *Ring) MappedLength() int {
	return r.mmLen
}

// Version returns the ring ABI generation established at setup
func (r *Ring) Version() socket.TPacketVersion {
	return r.layout.version
}

// FrameTableSize returns the number of addressable units in the frame table
// (frames for V2, blocks for V3)
func (r *Ring) FrameTableSize() int {
	return len(r.frames)
}

// Geometry returns the negotiated ring geometry
func (r *Ring) Geometry() (blockSize, blockNr, frameSize, frameNr uint32) {
	req := r.layout.active()
	return req.blockSize, req.blockNr, req.frameSize, req.frameNr
}

// PollEvent blocks on the polling descriptor until the requested socket events
// or a control event arrive and maps control events to their session errors.
// A nil return indicates socket readiness
func PollEvent(hdl *event.Handler, events int16) error {

	hasEvent, errno := hdl.Poll(events)
	if errno != 0 {
		return fmt.Errorf("event poll failed: %w", errno)
	}

	if hasEvent {
		data, err := hdl.Efd.ReadEvent()
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if data == event.SignalStop {
			return capture.ErrCaptureStopped
		}
		return capture.ErrCaptureUnblocked
	}

	return nil
}

//////////////////////////////////////////////////////////////////////////////////////////////////

// setupLayout populates the layout variant for the configured generation and
// switches the socket into the matching ring mode (the final calculator step)
func (r *Ring) setupLayout(sd socket.FileDescriptor) error {

	// Static precondition: the binary compatibility of the two request layouts
	if err := verifyRequestCompat(); err != nil {
		return err
	}

	r.layout = newRingLayout(r.version, r.size, r.jumbo)
	if err := r.layout.validate(); err != nil {
		return err
	}

	if err := setRingVersion(sd, r.version); err != nil {
		return err
	}

	r.state = stateLaidOut
	return nil
}

// createRing submits the layout to the kernel, halving the block count on
// memory pressure until the allocation is accepted or no headroom is left.
// Any failure other than a retryable ENOMEM aborts the setup
func (r *Ring) createRing(sd socket.FileDescriptor) error {

	req := r.layout.active()
	for {
		err := allocRing(sd, &r.layout)
		if err == nil {
			break
		}
		if errors.Is(err, unix.ENOMEM) && req.blockNr > 1 {
			req.blockNr >>= 1
			req.frameNr = req.blockSize / req.frameSize * req.blockNr
			continue
		}
		return fmt.Errorf("cannot allocate RX ring: %w", err)
	}

	// The granted geometry defines the mapping length, recomputed here because
	// negotiation may have reduced the block count
	r.mmLen = int(req.blockSize) * int(req.blockNr)

	if r.verbose {
		if r.layout.version == socket.TPacketV3 {
			fmt.Printf("RX,V3: %s, %d block(s), each %d bytes allocated\n",
				humanize.IBytes(uint64(r.mmLen)), req.blockNr, req.blockSize)
		} else {
			fmt.Printf("RX,V2: %s, %d frame(s), each %d bytes allocated\n",
				humanize.IBytes(uint64(r.mmLen)), req.frameNr, req.frameSize)
		}
	}

	r.state = stateNegotiated
	return nil
}

// buildFrameTable constructs the process-owned index over the mapped region.
// The addressable unit differs between the generations: individual frames for
// V2, whole blocks for V3
func (r *Ring) buildFrameTable() {

	var (
		req       = r.layout.active()
		num, size = int(req.frameNr), int(req.frameSize)
	)
	if r.layout.version == socket.TPacketV3 {
		num, size = int(req.blockNr), int(req.blockSize)
	}

	r.frames = make([][]byte, num)
	for i := 0; i < num; i++ {
		r.frames[i] = r.ring[i*size : (i+1)*size]
	}
}
