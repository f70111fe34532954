//go:build linux
// +build linux

package afring

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/fako1024/ringcap/capture/afpacket/socket"
	"golang.org/x/sys/unix"
)

const (
	tPacketAlignment = uint32(unix.TPACKET_ALIGNMENT)

	// tPacketDefaultBlockTOV denotes the default block retirement timeout of the
	// V3 ring in ms (0 would mean "let the kernel decide")
	tPacketDefaultBlockTOV = 100
)

var (
	pageSize = uint32(unix.Getpagesize())
)

// tPacketRequest denotes the V2 tpacket_req structure, c.f.
// https://www.kernel.org/doc/Documentation/networking/packet_mmap.txt
type tPacketRequest struct {
	blockSize uint32
	blockNr   uint32
	frameSize uint32
	frameNr   uint32
}

// tPacketRequestV3 denotes the V3 tpacket_req3 structure. It shares its four
// leading fields with the V2 layout (the kernel overlays both on the same
// memory region), the trailing fields control the deferred block retirement
type tPacketRequestV3 struct {
	tPacketRequest

	retireBlkTov   uint32
	sizeofPriv     uint32 //nolint:structcheck // (needed for correct sizeof(struct))
	featureReqWord uint32 //nolint:structcheck // (needed for correct sizeof(struct))
}

// newTPacketRequest computes the ring geometry for a requested total ring size.
// Block and frame sizes are fixed alignment-derived constants chosen by the
// jumbo profile, only the block count is solved for (integer division, any
// remainder of size is not allocated)
func newTPacketRequest(size int, jumbo bool) (req tPacketRequest) {

	req.blockSize = pageSize << 2
	req.frameSize = tPacketAlignment << 7
	if jumbo {
		req.blockSize = pageSize << 4
		req.frameSize = tPacketAlignment << 12
	}

	req.blockNr = uint32(size) / req.blockSize
	req.frameNr = req.blockSize / req.frameSize * req.blockNr

	return
}

// newTPacketRequestV3 computes the same geometry for the newer generation and
// populates the retirement defaults
func newTPacketRequestV3(size int, jumbo bool) (req tPacketRequestV3) {

	req.tPacketRequest = newTPacketRequest(size, jumbo)

	req.retireBlkTov = tPacketDefaultBlockTOV
	req.sizeofPriv = 0
	req.featureReqWord = 0

	return
}

// validate performs the structural self-check on a computed layout ahead of
// negotiation
func (t tPacketRequest) validate() error {

	if t.blockSize < t.frameSize {
		return fmt.Errorf("block size %d smaller than frame size %d", t.blockSize, t.frameSize)
	}
	if t.blockSize%t.frameSize != 0 {
		return fmt.Errorf("block size %d not a multiple of frame size %d", t.blockSize, t.frameSize)
	}
	if t.blockSize%pageSize != 0 {
		return fmt.Errorf("block size %d not aligned to page size", t.blockSize)
	}

	return nil
}

// ringLayout denotes the tagged union of the two mutually incompatible ring
// request layouts. The version tag is established once during setup and never
// re-derived from the socket for the lifetime of the ring
type ringLayout struct {
	version socket.TPacketVersion

	v2 tPacketRequest
	v3 tPacketRequestV3
}

func newRingLayout(version socket.TPacketVersion, size int, jumbo bool) (l ringLayout) {

	l.version = version
	if version == socket.TPacketV3 {
		l.v3 = newTPacketRequestV3(size, jumbo)
		return
	}
	l.v2 = newTPacketRequest(size, jumbo)

	return
}

// active returns the geometry fields of the generation in effect
func (l *ringLayout) active() *tPacketRequest {
	if l.version == socket.TPacketV3 {
		return &l.v3.tPacketRequest
	}
	return &l.v2
}

// req returns the raw pointer / length pair submitted to the kernel via
// PACKET_RX_RING for the generation in effect
func (l *ringLayout) req() (unsafe.Pointer, uintptr) {
	if l.version == socket.TPacketV3 {
		return unsafe.Pointer(&l.v3), unsafe.Sizeof(l.v3) // #nosec: G103
	}
	return unsafe.Pointer(&l.v2), unsafe.Sizeof(l.v2) // #nosec: G103
}

func (l *ringLayout) validate() error {
	return l.active().validate()
}

// ErrLayoutMismatch denotes a platform on which the two ring request layouts
// are not binary compatible
var ErrLayoutMismatch = errors.New("tpacket_req / tpacket_req3 request layouts diverge on this platform")

var (
	requestCompatOnce sync.Once
	requestCompatErr  error
)

// verifyRequestCompat confirms that the request structures of the two ring ABI
// generations occupy identical byte offsets for their common leading fields and
// that the V3-only fields start exactly past the V2 structure. This is a static
// property of the host's struct layout, checked once on first use. A violation
// means the binary compatibility assumption underlying the layout calculator
// does not hold on this platform
func verifyRequestCompat() error {
	requestCompatOnce.Do(func() {
		var (
			v2 tPacketRequest
			v3 tPacketRequestV3
		)
		if unsafe.Offsetof(v2.blockSize) != unsafe.Offsetof(v3.blockSize) || // #nosec: G103
			unsafe.Offsetof(v2.blockNr) != unsafe.Offsetof(v3.blockNr) || // #nosec: G103
			unsafe.Offsetof(v2.frameSize) != unsafe.Offsetof(v3.frameSize) || // #nosec: G103
			unsafe.Offsetof(v2.frameNr) != unsafe.Offsetof(v3.frameNr) || // #nosec: G103
			unsafe.Sizeof(v2) != unsafe.Offsetof(v3.retireBlkTov) { // #nosec: G103
			requestCompatErr = fmt.Errorf("%w (%d / %d)", ErrLayoutMismatch,
				unsafe.Sizeof(v2), unsafe.Offsetof(v3.retireBlkTov)) // #nosec: G103
		}
	})

	return requestCompatErr
}
