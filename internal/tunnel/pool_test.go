package tunnel

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

// startAcceptingRemote answers every tunnel connection with READY and an
// immediate close, counting accepts.
func startAcceptingRemote(t *testing.T, accepted *atomic.Int64) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen remote: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			accepted.Add(1)
			_, _ = c.Write([]byte("READY\n"))
			_ = c.Close()
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func startAcceptingLocal(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen local: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				_, _ = io.Copy(io.Discard, c)
			}(c)
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func TestPoolRestartsSlots(t *testing.T) {
	var accepted atomic.Int64
	rHost, rPort := startAcceptingRemote(t, &accepted)
	lHost, lPort := startAcceptingLocal(t)

	pool := NewPool(&Config{
		RemoteHost: rHost,
		RemotePort: rPort,
		Local:      LocalConfig{Host: lHost, Port: lPort},
	}, 2)
	pool.restartMin = 10 * time.Millisecond
	pool.restartMax = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()
	pool.Run(ctx)

	if got := accepted.Load(); got < 4 {
		t.Errorf("expected at least 4 accepted tunnels, got %d", got)
	}
	st := pool.Snapshot()
	if st.Slots != 2 {
		t.Fatalf("expected 2 slots, got %d", st.Slots)
	}
	for i, a := range st.Attempts {
		if a < 2 {
			t.Errorf("slot %d ran only %d attempts", i, a)
		}
	}
	if st.Active != 0 {
		t.Errorf("expected no active sessions after Run returned, got %d", st.Active)
	}
}

func TestPoolStopsOnCancel(t *testing.T) {
	// A remote that accepts and never speaks parks every session in the
	// ready wait; cancellation must still unwind them promptly.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen remote: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) { _, _ = io.Copy(io.Discard, c) }(c)
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)

	pool := NewPool(&Config{
		RemoteHost: "127.0.0.1",
		RemotePort: addr.Port,
		Local:      LocalConfig{Host: "127.0.0.1", Port: 1},
	}, 3)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}
}
