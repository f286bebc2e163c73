package tunnel

import (
	"encoding/json"
	"fmt"
	"net"
	"regexp"
	"time"

	"github.com/matst80/tnnlr/internal/proto"
)

// DefaultAuthTimeout bounds the wait for an auth indicator.
const DefaultAuthTimeout = 5 * time.Second

var (
	statusOKPattern    = regexp.MustCompile(`(?i)"status"\s*:\s*"ok"`)
	statusErrorPattern = regexp.MustCompile(`(?i)"status":"error"`)
)

type authVerdict int

const (
	authPending authVerdict = iota
	authAccepted
	authRejected
)

func classifyAuthLine(line string) authVerdict {
	switch line {
	case proto.AuthOK, proto.AuthSuccess:
		return authAccepted
	case proto.AuthFail:
		return authRejected
	}
	if statusOKPattern.MatchString(line) {
		return authAccepted
	}
	if statusErrorPattern.MatchString(line) {
		return authRejected
	}
	return authPending
}

// authenticate performs the auth exchange on a fresh rendezvous connection.
// With no key configured it succeeds without touching the socket. Indicator
// lines are consumed through sc so that a burst like "AUTH_OK\nPING\nREADY\n"
// coalesced into one segment leaves the PING and READY buffered for the
// ready wait. Lines that are neither acceptance nor rejection are ignored.
func authenticate(conn net.Conn, sc *proto.LineScanner, key string, timeout time.Duration) error {
	if key == "" {
		return nil
	}
	frame, err := json.Marshal(proto.Auth{Type: "auth", Key: key})
	if err != nil {
		return fmt.Errorf("encode auth frame: %w", err)
	}
	if _, err := conn.Write(append(frame, '\n')); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthTransport, err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthTransport, err)
	}
	defer conn.SetReadDeadline(time.Time{})

	buf := make([]byte, 4096)
	for {
		for {
			line, ok := sc.Line()
			if !ok {
				break
			}
			switch classifyAuthLine(line) {
			case authAccepted:
				return nil
			case authRejected:
				return ErrAuthRejected
			}
		}
		n, rerr := conn.Read(buf)
		if n > 0 {
			if ferr := sc.Feed(buf[:n]); ferr != nil {
				return &ProtocolError{Reason: ferr.Error()}
			}
		}
		if rerr != nil {
			if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				return ErrAuthTimeout
			}
			return fmt.Errorf("%w: %v", ErrAuthTransport, rerr)
		}
	}
}
