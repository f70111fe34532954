package link

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoopback(t *testing.T) {
	link, err := New("lo")
	require.Nil(t, err)

	require.Equal(t, TypeLoopback, link.Type)
	require.True(t, link.IsUp())
}

func TestNotExist(t *testing.T) {
	link, err := New("thisinterfacedoesnotexist")
	require.Error(t, err)
	require.Nil(t, link)
}

func TestFindAllLinks(t *testing.T) {
	links, err := FindAllLinks()
	require.Nil(t, err)

	for _, link := range links {
		require.NotNil(t, link)
	}
}

func TestIPHeaderOffset(t *testing.T) {
	tests := []struct {
		name     string
		linkType Type
		want     byte
	}{
		{"TypeEthernet", TypeEthernet, IPLayerOffsetEthernet},
		{"TypeLoopback", TypeLoopback, IPLayerOffsetEthernet},
		{"TypePPP", TypePPP, 0},
		{"TypeGRE", TypeGRE, 0},
		{"TypeNone", TypeNone, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.linkType.IPHeaderOffset())
		})
	}

	require.Panics(t, func() {
		TypeInvalid.IPHeaderOffset()
	})
}

func TestBPFFilter(t *testing.T) {
	for _, linkType := range []Type{TypeEthernet, TypeLoopback, TypePPP, TypeGRE, TypeNone} {
		filterFn := linkType.BPFFilter()
		require.NotNil(t, filterFn)

		instr := filterFn(64)
		require.NotEmpty(t, instr)
	}

	require.Panics(t, func() {
		TypeInvalid.BPFFilter()
	})
}

func TestEtherType(t *testing.T) {
	require.True(t, EtherTypeIPv4.HasValidIPLayer())
	require.True(t, EtherTypeIPv6.HasValidIPLayer())
	require.False(t, EtherType(0x0806).HasValidIPLayer())
}
