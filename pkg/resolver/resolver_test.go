package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/siftech/lookout/internal/mocks"
	"github.com/siftech/lookout/pkg/eventloop"
	"github.com/siftech/lookout/pkg/handles"
	"github.com/siftech/lookout/pkg/sockaddr"
)

// fakeBackend delivers one canned completion per issue through the
// loop, the way a real backend would.
type fakeBackend struct {
	loop     *eventloop.Loop
	code     int
	chain    func() *AddrInfo // nil means a nil result chain
	inline   bool
	issueErr error

	issued int
	closes int
}

func (f *fakeBackend) Getaddrinfo(_ string, _ Hints, token handles.Handle, deliver CompletionFunc) (bool, error) {
	if f.issueErr != nil {
		return false, f.issueErr
	}
	f.issued++

	var res *AddrInfo
	if f.chain != nil {
		res = f.chain()
	}
	code := f.code

	enqueue := f.loop.Reserve()
	go enqueue(func() { deliver(code, res, token) })
	return f.inline, nil
}

func (f *fakeBackend) Close() error {
	f.closes++
	return nil
}

// callbackRecorder keeps every callback invocation for assertions.
type callbackRecorder struct {
	resolved []string
	families []Family
	errs     []error
}

func (c *callbackRecorder) onResolved(addr string, family Family) {
	c.resolved = append(c.resolved, addr)
	c.families = append(c.families, family)
}

func (c *callbackRecorder) onEvent(err error) {
	c.errs = append(c.errs, err)
}

func singleNode(addr string) func() *AddrInfo {
	return func() *AddrInfo {
		return &AddrInfo{
			Family:    FamilyINET,
			Addr:      sockaddr.BuildIPv4(addr, 0),
			CanonName: addr,
		}
	}
}

type ResolverTestSuite struct {
	suite.Suite
	loop         *eventloop.Loop
	backend      *fakeBackend
	resolver     *Resolver
	factoryCalls int
}

func (s *ResolverTestSuite) SetupTest() {
	s.loop = eventloop.New(16)
	s.backend = &fakeBackend{loop: s.loop, code: CodeNone}
	s.factoryCalls = 0
	s.resolver = New(s.loop, func() Backend {
		s.factoryCalls++
		return s.backend
	})
}

func (s *ResolverTestSuite) TestLookupWhileLoopStopped() {
	rec := &callbackRecorder{}

	inline, err := s.resolver.Lookup("example.com", rec.onResolved, rec.onEvent)

	s.Require().ErrorIs(err, ErrLoopNotRunning)
	s.False(inline)
	s.Zero(s.resolver.table.Len(), "no handle may be allocated")
	s.Zero(s.resolver.ContextRefs())
	s.Zero(s.factoryCalls)
	s.Empty(rec.resolved)
	s.Empty(rec.errs)
}

func (s *ResolverTestSuite) TestLookupSuccess() {
	s.backend.chain = singleNode("93.184.216.34")
	rec := &callbackRecorder{}

	err := s.loop.Run(context.Background(), func() error {
		inline, err := s.resolver.Lookup("example.com", rec.onResolved, rec.onEvent)
		s.False(inline)
		return err
	})
	s.Require().NoError(err)

	s.Equal([]string{"93.184.216.34"}, rec.resolved)
	s.Equal([]Family{FamilyINET}, rec.families)
	s.Empty(rec.errs)

	s.Zero(s.resolver.ContextRefs())
	s.Zero(s.resolver.table.Len())
	s.Equal(1, s.backend.closes)

	stats := s.resolver.Stats()
	s.Equal(int64(1), stats.Issued)
	s.Equal(int64(1), stats.Resolved)
	s.Zero(stats.Failed)
}

func (s *ResolverTestSuite) TestLookupFailure() {
	s.backend.code = CodeServerFailed
	rec := &callbackRecorder{}

	err := s.loop.Run(context.Background(), func() error {
		_, err := s.resolver.Lookup("example.com", rec.onResolved, rec.onEvent)
		return err
	})
	s.Require().NoError(err)

	s.Empty(rec.resolved)
	s.Require().Len(rec.errs, 1)

	var dnsErr *DNSError
	s.Require().ErrorAs(rec.errs[0], &dnsErr)
	s.Equal(CodeServerFailed, dnsErr.Code)
	s.Equal("server failed", dnsErr.Message)

	s.Zero(s.resolver.ContextRefs())
	s.Zero(s.resolver.table.Len())
	s.Equal(int64(1), s.resolver.Stats().Failed)
}

func (s *ResolverTestSuite) TestLookupExtractionFailure() {
	testCases := []struct {
		name  string
		chain func() *AddrInfo
	}{
		{name: "nil result chain", chain: nil},
		{name: "node without sockaddr", chain: func() *AddrInfo {
			return &AddrInfo{Family: FamilyINET}
		}},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			loop := eventloop.New(16)
			backend := &fakeBackend{loop: loop, code: CodeNone, chain: tc.chain}
			r := New(loop, func() Backend { return backend })
			rec := &callbackRecorder{}

			err := loop.Run(context.Background(), func() error {
				_, err := r.Lookup("example.com", rec.onResolved, rec.onEvent)
				return err
			})
			s.Require().NoError(err)

			s.Empty(rec.resolved)
			s.Require().Len(rec.errs, 1)

			var dnsErr *DNSError
			s.Require().ErrorAs(rec.errs[0], &dnsErr)
			s.Equal(CodeExtraction, dnsErr.Code)
			s.Contains(dnsErr.Message, "inet")

			s.Zero(r.ContextRefs())
			s.Zero(r.table.Len())
		})
	}
}

func (s *ResolverTestSuite) TestLookupNonIPv4FamilyInvokesNothing() {
	s.backend.chain = func() *AddrInfo {
		return &AddrInfo{Family: FamilyINET6}
	}
	rec := &callbackRecorder{}

	err := s.loop.Run(context.Background(), func() error {
		_, err := s.resolver.Lookup("example.com", rec.onResolved, rec.onEvent)
		return err
	})
	s.Require().NoError(err)

	// Neither callback fires, but the resources are gone
	s.Empty(rec.resolved)
	s.Empty(rec.errs)
	s.Zero(s.resolver.ContextRefs())
	s.Zero(s.resolver.table.Len())
	s.Equal(1, s.backend.closes)
	s.Equal(int64(1), s.resolver.Stats().FamilyDropped)
}

func (s *ResolverTestSuite) TestLookupIssueFailureUnwinds() {
	s.backend.issueErr = errors.New("backend refused the query")
	rec := &callbackRecorder{}

	err := s.loop.Run(context.Background(), func() error {
		_, err := s.resolver.Lookup("example.com", rec.onResolved, rec.onEvent)
		s.Require().Error(err)
		s.Contains(err.Error(), "refused")
		return nil
	})
	s.Require().NoError(err)

	s.Empty(rec.resolved)
	s.Empty(rec.errs)
	s.Zero(s.resolver.table.Len())
	s.Zero(s.resolver.ContextRefs())
	// The context was created for the attempt and released by the unwind
	s.Equal(1, s.factoryCalls)
	s.Equal(1, s.backend.closes)
	s.Zero(s.resolver.Stats().Issued)
}

func (s *ResolverTestSuite) TestInlineReportPassesThrough() {
	s.backend.inline = true
	s.backend.chain = singleNode("198.51.100.1")
	rec := &callbackRecorder{}

	err := s.loop.Run(context.Background(), func() error {
		inline, err := s.resolver.Lookup("198.51.100.1", rec.onResolved, rec.onEvent)
		s.True(inline)
		return err
	})
	s.Require().NoError(err)

	// Inline or not, the callback arrives through the loop
	s.Equal([]string{"198.51.100.1"}, rec.resolved)
	s.Equal(int64(1), s.resolver.Stats().Inline)
}

func (s *ResolverTestSuite) TestAcquireReleaseCounting() {
	err := s.loop.Run(context.Background(), func() error {
		first, err := s.resolver.AcquireContext()
		s.Require().NoError(err)
		second, err := s.resolver.AcquireContext()
		s.Require().NoError(err)

		s.Same(first, second)
		s.Equal(2, s.resolver.ContextRefs())
		s.Equal(1, s.factoryCalls)

		s.resolver.ReleaseContext()
		s.Equal(1, s.resolver.ContextRefs())
		s.Zero(s.backend.closes)

		s.resolver.ReleaseContext()
		s.Zero(s.resolver.ContextRefs())
		s.Equal(1, s.backend.closes)

		// Releasing past zero clamps and never double-frees
		s.resolver.ReleaseContext()
		s.Zero(s.resolver.ContextRefs())
		s.Equal(1, s.backend.closes)
		return nil
	})
	s.Require().NoError(err)
}

func (s *ResolverTestSuite) TestAcquireRecreatesAfterDrain() {
	err := s.loop.Run(context.Background(), func() error {
		_, err := s.resolver.AcquireContext()
		s.Require().NoError(err)
		s.resolver.ReleaseContext()

		_, err = s.resolver.AcquireContext()
		s.Require().NoError(err)
		s.Equal(2, s.factoryCalls)
		s.Equal(1, s.resolver.ContextRefs())

		s.resolver.ReleaseContext()
		return nil
	})
	s.Require().NoError(err)
	s.Equal(2, s.backend.closes)
}

func (s *ResolverTestSuite) TestAcquireWhileLoopStopped() {
	_, err := s.resolver.AcquireContext()
	s.Require().ErrorIs(err, ErrLoopNotRunning)
	s.Zero(s.factoryCalls)
}

func (s *ResolverTestSuite) TestManyLookupsShareOneContext() {
	const k = 5
	s.backend.chain = singleNode("198.51.100.1")
	rec := &callbackRecorder{}

	err := s.loop.Run(context.Background(), func() error {
		for i := 0; i < k; i++ {
			if _, err := s.resolver.Lookup("example.com", rec.onResolved, rec.onEvent); err != nil {
				return err
			}
		}
		// All issued, none completed: completions queue behind this task
		s.Equal(k, s.resolver.ContextRefs())
		s.Equal(k, s.resolver.table.Len())
		s.Equal(1, s.factoryCalls)
		return nil
	})
	s.Require().NoError(err)

	s.Len(rec.resolved, k)
	s.Empty(rec.errs)
	s.Zero(s.resolver.ContextRefs())
	s.Zero(s.resolver.table.Len())
	s.Equal(1, s.backend.closes)
}

func (s *ResolverTestSuite) TestCallbackPanicStillCleansUp() {
	s.backend.chain = singleNode("203.0.113.1")
	rec := &callbackRecorder{}

	err := s.loop.Run(context.Background(), func() error {
		_, err := s.resolver.Lookup("example.com",
			func(string, Family) { panic("callback exploded") },
			rec.onEvent)
		return err
	})
	s.Require().NoError(err)

	s.Empty(rec.errs)
	s.Zero(s.resolver.ContextRefs())
	s.Zero(s.resolver.table.Len())
	s.Equal(1, s.backend.closes)
}

func (s *ResolverTestSuite) TestLiteralLookupEndToEnd() {
	client := new(mocks.MockExchanger)
	r := New(s.loop, func() Backend {
		return &DNSBackend{
			Client:    client,
			TCPClient: client,
			loop:      s.loop,
			servers:   []string{"192.0.2.53:53"},
		}
	})
	rec := &callbackRecorder{}

	var inline bool
	err := s.loop.Run(context.Background(), func() error {
		var err error
		inline, err = r.Lookup("93.184.216.34", rec.onResolved, rec.onEvent)
		return err
	})
	s.Require().NoError(err)

	s.True(inline)
	s.Equal([]string{"93.184.216.34"}, rec.resolved)
	s.Equal([]Family{FamilyINET}, rec.families)
	s.Empty(rec.errs)
	s.Zero(r.ContextRefs())

	// The literal never touched the network
	client.AssertNotCalled(s.T(), "ExchangeContext", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ResolverTestSuite) TestNXDomainLookupEndToEnd() {
	client := new(mocks.MockExchanger)
	resp := aResponse("nonexistent.invalid.tld", "")
	resp.Rcode = dns.RcodeNameError
	client.On("ExchangeContext", mock.Anything, mock.Anything, mock.Anything).
		Return(resp, time.Duration(0), nil)

	r := New(s.loop, func() Backend {
		return &DNSBackend{
			Client:    client,
			TCPClient: client,
			loop:      s.loop,
			servers:   []string{"192.0.2.53:53"},
		}
	})
	rec := &callbackRecorder{}

	err := s.loop.Run(context.Background(), func() error {
		_, err := r.Lookup("nonexistent.invalid.tld", rec.onResolved, rec.onEvent)
		return err
	})
	s.Require().NoError(err)

	s.Empty(rec.resolved)
	s.Require().Len(rec.errs, 1)

	var dnsErr *DNSError
	s.Require().ErrorAs(rec.errs[0], &dnsErr)
	s.NotZero(dnsErr.Code)
	s.Equal(CodeNotExist, dnsErr.Code)
	s.Zero(r.ContextRefs())
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverTestSuite))
}
