//go:build linux
// +build linux

package afring

import (
	"fmt"
	"testing"
	"unsafe"

	"github.com/fako1024/ringcap/capture/afpacket/socket"
	"github.com/stretchr/testify/require"
)

func TestLayoutGeometry(t *testing.T) {

	for _, jumbo := range []bool{false, true} {
		var (
			wantBlockSize = pageSize << 2
			wantFrameSize = tPacketAlignment << 7
		)
		if jumbo {
			wantBlockSize = pageSize << 4
			wantFrameSize = tPacketAlignment << 12
		}

		for i := 20; i < 28; i++ {
			size := 1 << i
			req := newTPacketRequest(size, jumbo)

			require.Equalf(t, wantBlockSize, req.blockSize, "size=%d, jumbo=%v", size, jumbo)
			require.Equalf(t, wantFrameSize, req.frameSize, "size=%d, jumbo=%v", size, jumbo)

			// Only the block count is solved for, by plain integer division
			require.Equalf(t, uint32(size)/req.blockSize, req.blockNr, "size=%d, jumbo=%v", size, jumbo)
			require.Equalf(t, req.blockSize/req.frameSize*req.blockNr, req.frameNr, "size=%d, jumbo=%v", size, jumbo)

			// The frames never cover more memory than was requested
			require.LessOrEqualf(t, uint64(req.frameNr)*uint64(req.frameSize), uint64(size), "size=%d, jumbo=%v", size, jumbo)

			require.Nil(t, req.validate())
		}
	}
}

func TestLayoutGeometryTruncation(t *testing.T) {

	// A size that is not a multiple of the block size truncates toward zero
	req := newTPacketRequest(int(pageSize<<2)*3+100, false)
	require.Equal(t, uint32(3), req.blockNr)

	// Below one block nothing is allocatable
	req = newTPacketRequest(int(pageSize<<2)-1, false)
	require.Equal(t, uint32(0), req.blockNr)
	require.Equal(t, uint32(0), req.frameNr)
}

func TestLayoutV3Defaults(t *testing.T) {

	req := newTPacketRequestV3(DefaultRingSize, false)

	require.Equal(t, newTPacketRequest(DefaultRingSize, false), req.tPacketRequest)
	require.Equal(t, uint32(tPacketDefaultBlockTOV), req.retireBlkTov)
	require.Equal(t, uint32(0), req.sizeofPriv)
	require.Equal(t, uint32(0), req.featureReqWord)
}

func TestRequestCompat(t *testing.T) {

	require.Nil(t, verifyRequestCompat())

	// The common leading fields of the two request layouts share their offsets
	// and the V3-only fields start exactly past the V2 structure
	var (
		v2 tPacketRequest
		v3 tPacketRequestV3
	)
	require.Equal(t, unsafe.Offsetof(v2.blockSize), unsafe.Offsetof(v3.blockSize))
	require.Equal(t, unsafe.Offsetof(v2.blockNr), unsafe.Offsetof(v3.blockNr))
	require.Equal(t, unsafe.Offsetof(v2.frameSize), unsafe.Offsetof(v3.frameSize))
	require.Equal(t, unsafe.Offsetof(v2.frameNr), unsafe.Offsetof(v3.frameNr))
	require.Equal(t, unsafe.Sizeof(v2), unsafe.Offsetof(v3.retireBlkTov))
}

func TestLayoutValidate(t *testing.T) {

	req := tPacketRequest{blockSize: pageSize, frameSize: pageSize << 1}
	require.EqualError(t, req.validate(), fmt.Sprintf("block size %d smaller than frame size %d", pageSize, pageSize<<1))

	req = tPacketRequest{blockSize: pageSize << 1, frameSize: tPacketAlignment * 3}
	require.EqualError(t, req.validate(), fmt.Sprintf("block size %d not a multiple of frame size %d", pageSize<<1, tPacketAlignment*3))

	req = tPacketRequest{blockSize: tPacketAlignment << 7, frameSize: tPacketAlignment << 7}
	if (tPacketAlignment<<7)%pageSize != 0 {
		require.EqualError(t, req.validate(), fmt.Sprintf("block size %d not aligned to page size", tPacketAlignment<<7))
	}
}

func TestLayoutTaggedVariant(t *testing.T) {

	l := newRingLayout(socket.TPacketV2, DefaultRingSize, false)
	require.Equal(t, socket.TPacketV2, l.version)
	require.Equal(t, &l.v2, l.active())

	ptr, n := l.req()
	require.Equal(t, unsafe.Pointer(&l.v2), ptr)
	require.Equal(t, unsafe.Sizeof(l.v2), n)

	l = newRingLayout(socket.TPacketV3, DefaultRingSize, false)
	require.Equal(t, socket.TPacketV3, l.version)
	require.Equal(t, &l.v3.tPacketRequest, l.active())

	ptr, n = l.req()
	require.Equal(t, unsafe.Pointer(&l.v3), ptr)
	require.Equal(t, unsafe.Sizeof(l.v3), n)
}
