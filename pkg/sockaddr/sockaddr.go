// Package sockaddr builds fixed-layout IPv4 socket-address values.
// The layout mirrors sockaddr_in so raw address bytes can be carried
// between the resolver backend and its callers without reparsing.
// Values are pool-owned: every BuildIPv4 must be paired with Release,
// or use the scoped WithIPv4 form.
package sockaddr

import (
	"net/netip"
	"sync"
)

// FamilyINET is the IPv4 address family tag (AF_INET).
const FamilyINET uint16 = 2

// InvalidAddr is the sentinel stored when an address fails to parse
// as a dotted quad. It collides with the broadcast address; callers
// that care pre-validate the input.
var InvalidAddr = [4]byte{0xff, 0xff, 0xff, 0xff}

// SockaddrIn4 is a fixed-layout IPv4 socket address. Port and Addr
// hold network byte order.
type SockaddrIn4 struct {
	Family uint16
	Port   [2]byte
	Addr   [4]byte
	Zero   [8]byte
}

var _pool = sync.Pool{
	New: func() any { return new(SockaddrIn4) },
}

// BuildIPv4 returns a pool-owned sockaddr for address and port. The
// structure is zero-filled first; an empty address binds the wildcard
// (network-order zero), and an unparseable address stores InvalidAddr
// blindly. The caller must Release the result on every exit path.
func BuildIPv4(address string, port uint16) *SockaddrIn4 {
	sa := _pool.Get().(*SockaddrIn4)
	*sa = SockaddrIn4{}

	sa.Family = FamilyINET
	sa.Port = htons(port)
	if address != "" {
		sa.Addr = parseDottedQuad(address)
	}
	return sa
}

// WithIPv4 builds a sockaddr, passes it to fn, and releases it when fn
// returns, error or not.
func WithIPv4(address string, port uint16, fn func(*SockaddrIn4) error) error {
	sa := BuildIPv4(address, port)
	defer sa.Release()
	return fn(sa)
}

// Release returns the sockaddr to the pool. Safe on nil. The value
// must not be used after release.
func (sa *SockaddrIn4) Release() {
	if sa == nil {
		return
	}
	*sa = SockaddrIn4{}
	_pool.Put(sa)
}

// AddrString returns the address in presentation form (dotted quad).
func (sa *SockaddrIn4) AddrString() string {
	return netip.AddrFrom4(sa.Addr).String()
}

// PortValue decodes the stored port back to host order.
func (sa *SockaddrIn4) PortValue() uint16 {
	return uint16(sa.Port[0])<<8 | uint16(sa.Port[1])
}

// htons lays v out most-significant byte first, the order sockaddr
// structures carry ports in.
func htons(v uint16) [2]byte {
	return [2]byte{byte(v >> 8), byte(v)}
}

func parseDottedQuad(address string) [4]byte {
	a, err := netip.ParseAddr(address)
	if err != nil {
		return InvalidAddr
	}
	a = a.Unmap()
	if !a.Is4() {
		return InvalidAddr
	}
	return a.As4()
}
