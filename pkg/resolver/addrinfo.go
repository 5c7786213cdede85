package resolver

import (
	"fmt"

	"github.com/siftech/lookout/pkg/sockaddr"
)

// Family tags the address family of a resolution result.
type Family int

// Address families, numbered as the usual AF_* constants.
const (
	FamilyUnspec Family = 0
	FamilyINET   Family = 2
	FamilyINET6  Family = 10
)

func (f Family) String() string {
	switch f {
	case FamilyUnspec:
		return "unspec"
	case FamilyINET:
		return "inet"
	case FamilyINET6:
		return "inet6"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// Socket type, protocol, and flag values used in hint specifications.
const (
	SockStream    = 1 // stream socket
	ProtoTCP      = 6 // TCP protocol number
	FlagCanonName = 2 // request the canonical name on the first node
)

// Hints constrains what a native resolution may return. A hint record
// is built fresh for each lookup and never reused.
type Hints struct {
	Family   Family
	SockType int
	Protocol int
	Flags    int
}

// lookupHints is the hint record every lookup issues: IPv4 only,
// stream/TCP, canonical name requested.
func lookupHints() Hints {
	return Hints{
		Family:   FamilyINET,
		SockType: SockStream,
		Protocol: ProtoTCP,
		Flags:    FlagCanonName,
	}
}

// AddrInfo is one node of a resolution result chain: a family tag, a
// socket address, the canonical name on the first node when requested,
// and a link to the next node.
type AddrInfo struct {
	Family    Family
	Addr      *sockaddr.SockaddrIn4
	CanonName string
	Next      *AddrInfo
}

// Release returns every sockaddr in the chain to its pool and severs
// the links. Safe on nil.
func (ai *AddrInfo) Release() {
	for node := ai; node != nil; {
		next := node.Next
		node.Addr.Release()
		node.Addr = nil
		node.Next = nil
		node = next
	}
}
