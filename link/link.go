/*
Package link provides access to network interfaces and their link type as
required for RX ring capture: the interface index the ring is bound to, the
link-type specific IP layer offset and the baseline BPF filter attached to the
capture socket.
*/
package link

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/net/bpf"
)

const (

	// IPLayerOffsetEthernet denotes the ethernet header offset
	IPLayerOffsetEthernet = 14

	// LayerOffsetPPPOE denotes the additional offset for PPPOE (session) packets
	LayerOffsetPPPOE = 8
)

// ErrNotExist denotes that the interface in question does not exist or carries
// no link type information
var ErrNotExist = errors.New("interface does not exist or is unsupported")

// EtherType denotes the protocol carried in the payload of an ethernet frame
type EtherType uint16

const (

	// EtherTypeIPv4 denotes an IPv4 ethernet frame
	EtherTypeIPv4 EtherType = 0x0800

	// EtherTypeIPv6 denotes an IPv6 ethernet frame
	EtherTypeIPv6 EtherType = 0x86DD
)

// HasValidIPLayer determines if a frame of this type carries an IPv4 or IPv6
// layer (the baseline BPF filters admit exactly these)
func (t EtherType) HasValidIPLayer() bool {
	return t == EtherTypeIPv4 || t == EtherTypeIPv6
}

// Type denotes the linux interface type
type Type int

const (

	// TypeInvalid denotes an invalid link type
	TypeInvalid Type = iota

	// TypeEthernet denotes a link of type ARPHRD_ETHER
	TypeEthernet Type = 1

	// TypePPP denotes a link of type ARPHRD_PPP
	TypePPP Type = 512

	// TypeLoopback denotes a link of type ARPHRD_LOOPBACK
	TypeLoopback Type = 772

	// TypeGRE denotes a link of type ARPHRD_IPGRE
	TypeGRE Type = 778

	// TypeNone denotes a link of type ARPHRD_NONE:
	// Tunnel / anything else (confirmed: Wireguard, OpenVPN)
	TypeNone Type = 65534
)

// IPHeaderOffset returns the link / interface specific payload offset for the IP header
// c.f. https://git.kernel.org/pub/scm/linux/kernel/git/torvalds/linux.git/tree/include/uapi/linux/if_arp.h
func (l Type) IPHeaderOffset() byte {
	switch l {
	case TypeEthernet,
		TypeLoopback:
		return IPLayerOffsetEthernet
	case TypePPP,
		TypeGRE,
		TypeNone:
		return 0
	}

	// Panic if unknown
	panic(fmt.Sprintf("Link Type %d not supported (yet)", l))
}

// BPFFilter returns the link / interface specific raw BPF instructions to filter for valid packets only
func (l Type) BPFFilter() func(snapLen int) []bpf.RawInstruction {
	switch l {
	case TypeEthernet,
		TypeLoopback:
		return bpfInstructionsLinkTypeEther
	case TypePPP,
		TypeGRE,
		TypeNone:
		return bpfInstructionsLinkTypeRaw
	}

	// Panic if unknown
	panic(fmt.Sprintf("Link Type %d not supported (yet)", l))
}

// Link denotes a link, i.e. an interface (wrapped) and its link type
type Link struct {
	Type Type

	*net.Interface
}

// New instantiates a new link / interface
func New(ifName string) (link *Link, err error) {

	iface, ierr := net.InterfaceByName(ifName)
	if ierr != nil {
		err = ierr
		return
	}

	linkType, lerr := getLinkType(ifName)
	if lerr != nil {
		if errors.Is(lerr, fs.ErrNotExist) {
			err = fmt.Errorf("`%s`: %w", ifName, ErrNotExist)
		} else {
			err = lerr
		}
		return
	}

	return &Link{
		Type:      linkType,
		Interface: iface,
	}, nil
}

// IsUp returns if a link / interface is up
func (l *Link) IsUp() bool {
	return l.Flags&syscall.IFF_UP != 0
}

// FindAllLinks retrieves all system network interfaces and their link type
func FindAllLinks() ([]*Link, error) {

	// Retrieve all network interfaces
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve system network interfaces: %w", err)
	}

	// Determine link type for all interfaces
	var links []*Link
	for i := 0; i < len(ifaces); i++ {

		linkType, err := getLinkType(ifaces[i].Name)
		if err != nil {
			return nil, fmt.Errorf("failed to determine link type for interface `%s`: %w", ifaces[i].Name, err)
		}

		links = append(links, &Link{
			Interface: &ifaces[i],
			Type:      linkType,
		})
	}

	return links, err
}

///////////////////////////

func getLinkType(ifName string) (Type, error) {

	sysPath := fmt.Sprintf("/sys/class/net/%s/type", ifName)
	data, err := os.ReadFile(sysPath)
	if err != nil {
		return -1, err
	}

	val, err := strconv.Atoi(strings.ReplaceAll(string(data), "\n", ""))
	if err != nil {
		return -1, err
	}

	if val < 0 || val > 65535 {
		return -1, fmt.Errorf("invalid link type read from `%s`: %d", sysPath, val)
	}

	return Type(val), nil
}
