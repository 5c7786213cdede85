package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/atomic"

	"github.com/siftech/lookout/internal/log"
	"github.com/siftech/lookout/pkg/eventloop"
	"github.com/siftech/lookout/pkg/handles"
	"github.com/siftech/lookout/pkg/sockaddr"
)

var _defaultServer = "1.1.1.1:53"

const _resolvConf = "/etc/resolv.conf"

// CompletionFunc receives one finished resolution on the loop
// goroutine: the native code, the result chain when the code is zero,
// and the correlation token from the issue call.
type CompletionFunc func(code int, res *AddrInfo, token handles.Handle)

// Backend issues asynchronous native resolutions. Implementations own
// the loop reservation for each query and deliver its completion
// exactly once through the loop, inline results included.
type Backend interface {
	// Getaddrinfo issues one resolution. The bool reports whether the
	// result was produced without network I/O; the completion arrives
	// through the loop either way. A returned error means the query was
	// refused and no completion will follow.
	Getaddrinfo(host string, hints Hints, token handles.Handle, deliver CompletionFunc) (bool, error)
	// Close frees the backend. Queries already in flight finish on
	// their own; new ones are refused.
	Close() error
}

// Exchanger defines the interface for DNS message exchange.
type Exchanger interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, a string) (r *dns.Msg, rtt time.Duration, err error)
}

var _ Backend = (*DNSBackend)(nil)

// DNSBackend resolves names by querying the system-configured
// nameservers for A records, over UDP with a TCP retry when the reply
// comes back truncated.
type DNSBackend struct {
	// Client performs UDP exchanges and TCPClient the truncation
	// retries; both are swappable for tests.
	Client    Exchanger
	TCPClient Exchanger

	loop    *eventloop.Loop
	servers []string
	retries uint
	closed  atomic.Bool
}

// NewDNSBackend creates a backend bound to loop. Each exchange is
// bounded by timeout, and a failed exchange is retried up to retries
// additional times across the configured nameservers.
func NewDNSBackend(loop *eventloop.Loop, timeout time.Duration, retries uint) *DNSBackend {
	return &DNSBackend{
		Client:    &dns.Client{Timeout: timeout},
		TCPClient: &dns.Client{Net: "tcp", Timeout: timeout},
		loop:      loop,
		servers:   systemServers(),
		retries:   retries,
	}
}

// Getaddrinfo issues one A-record resolution for host. A host that is
// already a plain IPv4 address is answered from the input itself
// without touching the network; the completion still flows through the
// loop queue.
func (b *DNSBackend) Getaddrinfo(host string, hints Hints, token handles.Handle, deliver CompletionFunc) (bool, error) {
	if b.closed.Load() {
		return false, ErrBackendClosed
	}
	if hints.Family != FamilyINET {
		return false, fmt.Errorf("unsupported hint family %s", hints.Family)
	}

	enqueue := b.loop.Reserve()

	if numericHost(host) {
		res := literalChain(host, hints)
		go enqueue(func() { deliver(CodeNone, res, token) })
		return true, nil
	}

	go func() {
		code, res := b.resolve(host, hints)
		enqueue(func() { deliver(code, res, token) })
	}()
	return false, nil
}

// Close marks the backend shut down.
func (b *DNSBackend) Close() error {
	b.closed.Store(true)
	return nil
}

// resolve runs the query to a terminal code: zero with a result chain,
// or the error code of the last attempt. Transport failures and
// truncated replies are retried; response codes are final.
func (b *DNSBackend) resolve(host string, hints Hints) (int, *AddrInfo) {
	lastCode := CodeUnknown
	for attempt := uint(0); attempt <= b.retries; attempt++ {
		server := b.servers[int(attempt)%len(b.servers)]

		resp, err := b.exchange(b.Client, host, server)
		if err != nil {
			lastCode = codeForError(err)
			log.Debugf("resolver: exchange with %s failed: %v", server, err)
			continue
		}

		if resp.Truncated {
			// The UDP reply did not fit; ask the same server over TCP.
			resp, err = b.exchange(b.TCPClient, host, server)
			if err != nil || resp.Truncated {
				lastCode = CodeTruncated
				continue
			}
		}

		if resp.Rcode != dns.RcodeSuccess {
			return rcodeToCode(resp.Rcode), nil
		}

		chain := answerChain(resp, hints)
		if chain == nil {
			return CodeNoData, nil
		}
		return CodeNone, chain
	}
	return lastCode, nil
}

func (b *DNSBackend) exchange(client Exchanger, host, server string) (*dns.Msg, error) {
	// Fresh request per attempt; ExchangeContext mutates *dns.Msg.
	req := new(dns.Msg)
	req.SetQuestion(dns.Fqdn(host), dns.TypeA)

	resp, _, err := client.ExchangeContext(context.Background(), req, server)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("empty response from %s", server)
	}
	return resp, nil
}

// answerChain converts the A answers into a result chain. When the
// canonical name was requested it lands on the first node only, taken
// from a leading CNAME or the question name.
func answerChain(resp *dns.Msg, hints Hints) *AddrInfo {
	var head, tail *AddrInfo
	canon := ""

	for _, rr := range resp.Answer {
		switch record := rr.(type) {
		case *dns.CNAME:
			canon = strings.TrimSuffix(record.Target, ".")
		case *dns.A:
			v4 := record.A.To4()
			if v4 == nil {
				continue
			}
			node := &AddrInfo{
				Family: FamilyINET,
				Addr:   sockaddr.BuildIPv4(v4.String(), 0),
			}
			if head == nil {
				head = node
			} else {
				tail.Next = node
			}
			tail = node
		}
	}

	if head == nil {
		return nil
	}
	if hints.Flags&FlagCanonName != 0 {
		if canon == "" && len(resp.Question) > 0 {
			canon = strings.TrimSuffix(resp.Question[0].Name, ".")
		}
		head.CanonName = canon
	}
	return head
}

// literalChain is the inline result for a numeric host: one node
// carrying the host's own bytes.
func literalChain(host string, hints Hints) *AddrInfo {
	node := &AddrInfo{
		Family: FamilyINET,
		Addr:   sockaddr.BuildIPv4(host, 0),
	}
	if hints.Flags&FlagCanonName != 0 {
		node.CanonName = host
	}
	return node
}

// numericHost reports whether host is already a plain IPv4 address.
// Stricter than IsIPLiteral: the octets must parse, since the bytes
// feed the result chain directly.
func numericHost(host string) bool {
	a, err := netip.ParseAddr(host)
	return err == nil && a.Is4()
}

// rcodeToCode maps DNS response codes onto the native error code space.
func rcodeToCode(rcode int) int {
	switch rcode {
	case dns.RcodeSuccess:
		return CodeNone
	case dns.RcodeFormatError:
		return CodeFormat
	case dns.RcodeServerFailure:
		return CodeServerFailed
	case dns.RcodeNameError:
		return CodeNotExist
	case dns.RcodeNotImplemented:
		return CodeNotImpl
	case dns.RcodeRefused:
		return CodeRefused
	default:
		return CodeUnknown
	}
}

func codeForError(err error) int {
	var nerr net.Error
	switch {
	case errors.As(err, &nerr) && nerr.Timeout():
		return CodeTimeout
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	default:
		return CodeUnknown
	}
}

// systemServers reads the nameserver list from resolv.conf, falling
// back to a public resolver when the file is missing or empty.
func systemServers() []string {
	conf, err := dns.ClientConfigFromFile(_resolvConf)
	if err != nil {
		log.Warnf("resolver: reading %s: %v; falling back to %s", _resolvConf, err, _defaultServer)
		return []string{_defaultServer}
	}
	if len(conf.Servers) == 0 {
		return []string{_defaultServer}
	}

	servers := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		servers = append(servers, net.JoinHostPort(s, conf.Port))
	}
	return servers
}
