package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/c360/gofhem/transport"
)

// MockTransport is a scripted transport.Streamer for tests that need a
// FHEM server without a socket. Exec answers from canned responses,
// Receive hands out scripted chunks, and every call is recorded for
// verification. All methods are safe for concurrent use.
//
// Error queues pop one entry per call, so a single transient failure
// followed by success models a dropped connection. An exhausted queue
// means success.
type MockTransport struct {
	mu sync.Mutex

	// ConnectErrs, SendErrs and ExecErrs script per-call failures.
	ConnectErrs []error
	SendErrs    []error
	ExecErrs    []error

	// RecvErr is returned by every Receive once the scripted chunks
	// are drained. While nil, a drained Receive waits out the window
	// and returns an empty payload like a silent server.
	RecvErr error

	// Responses maps a command to its Exec payload. Commands not in
	// the map fall back to Response.
	Responses map[string][]byte
	Response  []byte

	connected bool
	chunks    [][]byte
	sent      []string
	commands  []string
	lastOpts  transport.ExecOptions
	connects  int
	closes    int
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

// Connect consumes the next scripted connect error or marks the
// transport connected.
func (m *MockTransport) Connect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connects++
	if err := popErr(&m.ConnectErrs); err != nil {
		return err
	}
	m.connected = true
	return nil
}

// Connected reports the scripted connection state.
func (m *MockTransport) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Send records the payload unless a scripted error consumes the call.
func (m *MockTransport) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := popErr(&m.SendErrs); err != nil {
		return err
	}
	m.sent = append(m.sent, string(data))
	return nil
}

// Exec records the command, then answers with the canned response for
// it. Failed calls are recorded too, matching a transport that died
// mid-exchange.
func (m *MockTransport) Exec(_ context.Context, cmd string, opts transport.ExecOptions) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.commands = append(m.commands, cmd)
	m.lastOpts = opts
	if err := popErr(&m.ExecErrs); err != nil {
		return nil, err
	}
	if resp, ok := m.Responses[cmd]; ok {
		return resp, nil
	}
	return m.Response, nil
}

// Close marks the transport disconnected. Always succeeds.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = false
	m.closes++
	return nil
}

// Receive returns the next scripted chunk. With the chunks drained it
// reports RecvErr once set, otherwise it idles for the window like a
// server with nothing to push.
func (m *MockTransport) Receive(timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	if len(m.chunks) > 0 {
		chunk := m.chunks[0]
		m.chunks = m.chunks[1:]
		m.mu.Unlock()
		return chunk, nil
	}
	err := m.RecvErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	time.Sleep(timeout)
	return nil, nil
}

// Feed appends chunks for Receive to hand out. Each argument arrives
// as one read, so a line split across arguments exercises partial-line
// reassembly.
func (m *MockTransport) Feed(chunks ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.chunks = append(m.chunks, []byte(c))
	}
}

// Sent returns everything written with Send, one entry per call.
func (m *MockTransport) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

// Commands returns every command passed to Exec, failed calls
// included.
func (m *MockTransport) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

// LastOpts returns the options of the most recent Exec call.
func (m *MockTransport) LastOpts() transport.ExecOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOpts
}

// ConnectCount returns how often Connect was called.
func (m *MockTransport) ConnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// CloseCount returns how often Close was called.
func (m *MockTransport) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}
