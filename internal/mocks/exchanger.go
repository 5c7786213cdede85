// Package mocks holds shared testify mocks used across package tests.
package mocks

import (
	"context"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/mock"
)

// MockExchanger is a mock implementation of the resolver's Exchanger
// interface. It is written in the testify/mock style and adheres to
// the ExchangeContext signature of dns.Client.
type MockExchanger struct {
	mock.Mock
}

// ExchangeContext mocks the ExchangeContext method.
func (m *MockExchanger) ExchangeContext(ctx context.Context, msg *dns.Msg, addr string) (*dns.Msg, time.Duration, error) {
	args := m.Called(ctx, msg, addr)
	// Need to handle potential nil pointer return
	var resp *dns.Msg
	if args.Get(0) != nil {
		resp = args.Get(0).(*dns.Msg)
	}
	return resp, args.Get(1).(time.Duration), args.Error(2)
}
