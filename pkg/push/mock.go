package push

import (
	"context"
	"errors"
	"sync"
)

type MockCall struct {
	Subscription Subscription
	Payload      []byte
}

// MockClient records sends; Err, when set, is returned from every call.
type MockClient struct {
	mu    sync.Mutex
	Calls []MockCall
	Err   error

	// FailNext makes the next call fail once.
	FailNext bool
}

func NewMockClient() *MockClient {
	return &MockClient{Calls: make([]MockCall, 0)}
}

func (m *MockClient) Send(ctx context.Context, sub Subscription, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Subscription: sub, Payload: append([]byte(nil), payload...)})

	if m.FailNext {
		m.FailNext = false
		return errors.New("mock push send failure")
	}
	return m.Err
}

func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func (m *MockClient) LastCall() (MockCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return MockCall{}, false
	}
	return m.Calls[len(m.Calls)-1], true
}
