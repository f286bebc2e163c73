package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/matst80/tnnlr/internal/httpx"
	"github.com/matst80/tnnlr/internal/obs"
	"github.com/matst80/tnnlr/internal/proto"
)

const (
	remoteDialTimeout = 10 * time.Second
	spliceBufferSize  = 32 * 1024
)

// Config describes one tunnel pool against a single rendezvous endpoint.
type Config struct {
	RemoteHost string
	RemotePort int

	// SecretKey, when set, triggers the auth exchange before READY.
	SecretKey   string
	AuthTimeout time.Duration

	Local LocalConfig

	// OnRequest observes the method/path sniffed from tunneled traffic.
	// Best effort and non-consuming; only the first token pair of the
	// first chunk after READY is guaranteed to be inspected.
	OnRequest func(httpx.RequestInfo)
}

func (c *Config) remoteAddr() string {
	return net.JoinHostPort(c.RemoteHost, strconv.Itoa(c.RemotePort))
}

func (c *Config) authTimeout() time.Duration {
	if c.AuthTimeout > 0 {
		return c.AuthTimeout
	}
	return DefaultAuthTimeout
}

// State tracks a session through its lifecycle.
type State int32

const (
	StateDial State = iota
	StateAuth
	StateAwaitReady
	StateLocalDial
	StateSplicing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDial:
		return "dial"
	case StateAuth:
		return "auth"
	case StateAwaitReady:
		return "await_ready"
	case StateLocalDial:
		return "local_dial"
	case StateSplicing:
		return "splicing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Session is one rendezvous connection paired with one local connection.
// It owns exactly those two sockets; no state is shared between sessions.
type Session struct {
	cfg     *Config
	slot    int
	state   atomic.Int32
	spliced atomic.Bool
}

func newSession(cfg *Config, slot int) *Session {
	return &Session{cfg: cfg, slot: slot}
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	if st == StateSplicing {
		s.spliced.Store(true)
	}
	obs.Debug("session.state", obs.Fields{"slot": s.slot, "state": st.String()})
}

// State returns the last recorded lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// reachedSplicing reports whether the session got past READY and local dial.
func (s *Session) reachedSplicing() bool { return s.spliced.Load() }

// Run drives the session to a terminal state. A nil return means the remote
// closed the tunnel normally; any error has already closed both sockets.
func (s *Session) Run(ctx context.Context) error {
	err := s.run(ctx)
	if err != nil {
		s.state.Store(int32(StateFailed))
	} else {
		s.state.Store(int32(StateClosed))
	}
	return err
}

func (s *Session) run(ctx context.Context) error {
	s.setState(StateDial)
	d := net.Dialer{Timeout: remoteDialTimeout, KeepAlive: 30 * time.Second}
	remote, err := d.DialContext(ctx, "tcp", s.cfg.remoteAddr())
	if err != nil {
		return &DialError{Side: "remote", Addr: s.cfg.remoteAddr(), Refused: isConnRefused(err), Err: err}
	}
	// Cancellation is delivered by closing the socket, which unblocks any
	// read the session is parked on.
	stopWatch := context.AfterFunc(ctx, func() { _ = remote.Close() })
	defer stopWatch()
	defer remote.Close()

	sc := &proto.LineScanner{}
	s.setState(StateAuth)
	if err := authenticate(remote, sc, s.cfg.SecretKey, s.cfg.authTimeout()); err != nil {
		return err
	}

	s.setState(StateAwaitReady)
	residue, err := awaitReady(remote, sc)
	if err != nil {
		return err
	}

	s.setState(StateLocalDial)
	local, err := dialLocal(ctx, s.cfg.Local)
	if err != nil {
		return err
	}
	defer local.Close()

	s.setState(StateSplicing)
	obs.SplicingTunnels.Inc()
	defer obs.SplicingTunnels.Dec()
	obs.Debug("session.splicing", obs.Fields{"slot": s.slot, "residue": len(residue)})
	return s.splice(remote, local, residue)
}

type copyOutcome struct {
	dir string
	err error
}

// splice runs the two copy loops until the remote leg ends. The remote side
// closing is the normal terminal condition; the local side closing alone is
// logged and the session keeps draining the remote until it too ends.
func (s *Session) splice(remote, local net.Conn, residue []byte) error {
	results := make(chan copyOutcome, 2)
	go func() { results <- copyOutcome{"down", s.copyRemoteToLocal(remote, local, residue)} }()
	go func() { results <- copyOutcome{"up", copyLocalToRemote(remote, local)} }()

	var failure error
	closed := false
	closeBoth := func() {
		if !closed {
			closed = true
			_ = remote.Close()
			_ = local.Close()
		}
	}
	for i := 0; i < 2; i++ {
		r := <-results
		switch r.dir {
		case "down":
			// The remote leg ending is terminal either way.
			if r.err != nil && failure == nil && !closed {
				failure = r.err
			}
			closeBoth()
		case "up":
			if r.err == nil {
				// Local closed cleanly; the remote may still be mid-
				// response, so leave it open and wait for the other leg.
				obs.Info("session.local.closed", obs.Fields{"slot": s.slot})
				continue
			}
			if failure == nil && !closed {
				failure = r.err
			}
			closeBoth()
		}
	}
	return failure
}

// copyRemoteToLocal forwards tunneled bytes to the local server, starting
// with the post-READY residue, applying the one-shot Host rewrite when the
// local host is not a conventional loopback name. A nil return means the
// remote reached EOF.
func (s *Session) copyRemoteToLocal(remote, local net.Conn, residue []byte) error {
	var rewriter *httpx.HostRewriter
	if !isLoopback(s.cfg.Local.Host) {
		rewriter = httpx.NewHostRewriter(s.cfg.Local.Host)
	}
	forward := func(p []byte) error {
		if len(p) == 0 {
			return nil
		}
		s.observe(p)
		if rewriter != nil {
			p = rewriter.Apply(p)
		}
		if _, err := local.Write(p); err != nil {
			return fmt.Errorf("write local: %w", err)
		}
		obs.ForwardedBytesTotal.WithLabelValues("down").Add(float64(len(p)))
		return nil
	}
	if err := forward(residue); err != nil {
		return err
	}
	buf := make([]byte, spliceBufferSize)
	for {
		n, err := remote.Read(buf)
		if n > 0 {
			if werr := forward(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// copyLocalToRemote streams response bytes back to the rendezvous. A nil
// return means the local side reached EOF.
func copyLocalToRemote(remote, local net.Conn) error {
	buf := make([]byte, spliceBufferSize)
	for {
		n, err := local.Read(buf)
		if n > 0 {
			if _, werr := remote.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write remote: %w", werr)
			}
			obs.ForwardedBytesTotal.WithLabelValues("up").Add(float64(n))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (s *Session) observe(p []byte) {
	if s.cfg.OnRequest == nil {
		return
	}
	if info, ok := httpx.SniffRequestLine(p); ok {
		obs.RequestsObservedTotal.Inc()
		s.cfg.OnRequest(info)
	}
}
