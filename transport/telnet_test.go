package transport

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/c360/gofhem/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTelnetServer runs a scripted telnet peer on a loopback port and
// returns the host and port to dial.
func startTelnetServer(t *testing.T, handler func(net.Conn)) (string, int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "Failed to listen")
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer func() { _ = c.Close() }()
				handler(c)
			}(conn)
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

// respondOnce reads one command and answers with the canned response,
// then holds the connection open so the client can drain.
func respondOnce(response string) func(net.Conn) {
	return func(conn net.Conn) {
		buf := make([]byte, 1024)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		_, _ = conn.Write([]byte(response))
		time.Sleep(500 * time.Millisecond)
	}
}

func testTelnet(t *testing.T, host string, port int, mutate func(*TelnetConfig)) *Telnet {
	t.Helper()

	cfg := DefaultTelnetConfig()
	cfg.Server = host
	cfg.Port = port
	cfg.ConnectTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	tn, err := NewTelnet(cfg)
	require.NoError(t, err, "Failed to create transport")
	t.Cleanup(func() { _ = tn.Close() })
	return tn
}

func TestNewTelnet_Validation(t *testing.T) {
	_, err := NewTelnet(TelnetConfig{})
	require.Error(t, err, "Missing server must be rejected")
	assert.True(t, errors.IsInvalid(err), "Expected invalid class, got %v", err)

	tn, err := NewTelnet(TelnetConfig{Server: "fhem.local"})
	require.NoError(t, err)
	assert.Equal(t, 7072, tn.config.Port, "Default port should apply")
	assert.Equal(t, 100*time.Millisecond, tn.config.ReadTimeout)
	assert.False(t, tn.Connected(), "Must not be connected before Connect")
}

func TestTelnetConnectAndExec(t *testing.T) {
	host, port := startTelnetServer(t, respondOnce("room1 kitchen\nroom2 living\n"))
	tn := testTelnet(t, host, port, nil)

	ctx := context.Background()
	require.NoError(t, tn.Connect(ctx))
	assert.True(t, tn.Connected())

	data, err := tn.Exec(ctx, "jsonlist2", ExecOptions{Timeout: 300 * time.Millisecond})
	require.NoError(t, err)
	assert.Contains(t, string(data), "room1 kitchen")
}

func TestTelnetConnectIdempotent(t *testing.T) {
	host, port := startTelnetServer(t, respondOnce("ok\n"))
	tn := testTelnet(t, host, port, nil)

	ctx := context.Background()
	require.NoError(t, tn.Connect(ctx))
	require.NoError(t, tn.Connect(ctx), "Second Connect must be a no-op")
	assert.True(t, tn.Connected())
}

func TestTelnetSendAppendsNothing(t *testing.T) {
	var mu sync.Mutex
	var received []byte

	host, port := startTelnetServer(t, func(conn net.Conn) {
		buf := make([]byte, 1024)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		mu.Lock()
		received = append(received, buf[:n]...)
		mu.Unlock()
		time.Sleep(300 * time.Millisecond)
	})
	tn := testTelnet(t, host, port, nil)

	require.NoError(t, tn.Connect(context.Background()))
	require.NoError(t, tn.Send([]byte("inform timer\n")))

	// Let the server pick it up
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "inform timer\n", string(received), "Send must write raw bytes")
}

func TestTelnetExecAppendsNewline(t *testing.T) {
	var mu sync.Mutex
	var received []byte

	host, port := startTelnetServer(t, func(conn net.Conn) {
		buf := make([]byte, 1024)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		mu.Lock()
		received = append(received, buf[:n]...)
		mu.Unlock()
		_, _ = conn.Write([]byte("done\n"))
		time.Sleep(300 * time.Millisecond)
	})
	tn := testTelnet(t, host, port, nil)

	require.NoError(t, tn.Connect(context.Background()))
	_, err := tn.Exec(context.Background(), "set lamp on", ExecOptions{Timeout: 200 * time.Millisecond})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "set lamp on\n", string(received), "Exec must terminate the command line")
}

func TestTelnetPasswordAccepted(t *testing.T) {
	host, port := startTelnetServer(t, func(conn net.Conn) {
		_, _ = conn.Write([]byte("Password: "))
		buf := make([]byte, 256)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if strings.TrimSpace(string(buf[:n])) != "secret" {
			return // closing the connection signals rejection
		}
		// Accepted: stay silent and keep serving
		time.Sleep(2 * time.Second)
	})
	tn := testTelnet(t, host, port, func(cfg *TelnetConfig) {
		cfg.Password = "secret"
	})

	require.NoError(t, tn.Connect(context.Background()))
	assert.True(t, tn.Connected())
}

func TestTelnetPasswordRejected(t *testing.T) {
	host, port := startTelnetServer(t, func(conn net.Conn) {
		_, _ = conn.Write([]byte("Password: "))
		buf := make([]byte, 256)
		_, _ = conn.Read(buf)
		// Wrong password: server hangs up
	})
	tn := testTelnet(t, host, port, func(cfg *TelnetConfig) {
		cfg.Password = "wrong"
	})

	err := tn.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAuthenticationFailed)
	assert.False(t, tn.Connected())
}

func TestTelnetReceiveWindowElapsed(t *testing.T) {
	host, port := startTelnetServer(t, func(_ net.Conn) {
		time.Sleep(2 * time.Second) // silent peer
	})
	tn := testTelnet(t, host, port, nil)

	require.NoError(t, tn.Connect(context.Background()))

	start := time.Now()
	data, err := tn.Receive(100 * time.Millisecond)
	require.NoError(t, err, "An elapsed window is not an error")
	assert.Empty(t, data)
	assert.Less(t, time.Since(start), time.Second, "Receive must honor the window")
}

func TestTelnetReceiveConnectionLost(t *testing.T) {
	host, port := startTelnetServer(t, func(_ net.Conn) {
		// Immediate hangup after accept
	})
	tn := testTelnet(t, host, port, nil)

	require.NoError(t, tn.Connect(context.Background()))

	_, err := tn.Receive(time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConnectionLost)
	assert.False(t, tn.Connected(), "Loss must flip the connection state")
}

func TestTelnetExecBlockingWaitsForData(t *testing.T) {
	host, port := startTelnetServer(t, func(conn net.Conn) {
		buf := make([]byte, 1024)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		time.Sleep(300 * time.Millisecond)
		_, _ = conn.Write([]byte("late answer\n"))
		time.Sleep(300 * time.Millisecond)
	})
	tn := testTelnet(t, host, port, nil)

	require.NoError(t, tn.Connect(context.Background()))

	data, err := tn.Exec(context.Background(), "get lamp",
		ExecOptions{Timeout: 50 * time.Millisecond, Blocking: true})
	require.NoError(t, err)
	assert.Equal(t, "late answer\n", string(data), "Blocking mode must poll past the window")
}

func TestTelnetExecBlockingContextCancel(t *testing.T) {
	host, port := startTelnetServer(t, func(conn net.Conn) {
		buf := make([]byte, 1024)
		_, _ = conn.Read(buf)
		time.Sleep(2 * time.Second) // never answers
	})
	tn := testTelnet(t, host, port, nil)

	require.NoError(t, tn.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	_, err := tn.Exec(ctx, "get lamp", ExecOptions{Timeout: 50 * time.Millisecond, Blocking: true})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestTelnetSendNotConnected(t *testing.T) {
	tn, err := NewTelnet(TelnetConfig{Server: "fhem.local"})
	require.NoError(t, err)

	err = tn.Send([]byte("ping\n"))
	assert.ErrorIs(t, err, errors.ErrNotConnected)

	_, err = tn.Receive(10 * time.Millisecond)
	assert.ErrorIs(t, err, errors.ErrNotConnected)
}

func TestTelnetCloseIdempotent(t *testing.T) {
	host, port := startTelnetServer(t, respondOnce("ok\n"))
	tn := testTelnet(t, host, port, nil)

	require.NoError(t, tn.Connect(context.Background()))
	require.NoError(t, tn.Close())
	require.NoError(t, tn.Close(), "Second Close must be a no-op")
	assert.False(t, tn.Connected())
}

func TestTelnetReconnectAfterClose(t *testing.T) {
	host, port := startTelnetServer(t, respondOnce("back again\n"))
	tn := testTelnet(t, host, port, nil)

	ctx := context.Background()
	require.NoError(t, tn.Connect(ctx))
	require.NoError(t, tn.Close())

	require.NoError(t, tn.Connect(ctx), "Connect after Close must redial")
	data, err := tn.Exec(ctx, "jsonlist2", ExecOptions{Timeout: 300 * time.Millisecond})
	require.NoError(t, err)
	assert.Contains(t, string(data), "back again")
}
