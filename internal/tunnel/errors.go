package tunnel

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	ErrAuthTimeout    = errors.New("authentication timed out")
	ErrAuthRejected   = errors.New("authentication rejected by remote")
	ErrAuthTransport  = errors.New("connection lost during authentication")
	ErrPrematureClose = errors.New("remote closed before READY")
)

// ProtocolError reports malformed or oversized control data before READY.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "protocol error: " + e.Reason }

// DialError wraps a failure to reach either leg of a tunnel. Refused is set
// when the underlying cause is ECONNREFUSED so the supervisor can label it.
type DialError struct {
	Side    string // "remote" or "local"
	Addr    string
	Refused bool
	Err     error
}

func (e *DialError) Error() string {
	if e.Refused {
		return fmt.Sprintf("%s connection refused at %s", e.Side, e.Addr)
	}
	return fmt.Sprintf("%s dial %s: %v", e.Side, e.Addr, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// LocalConfigError reports unusable local TLS configuration (missing or
// malformed certificate material).
type LocalConfigError struct {
	Err error
}

func (e *LocalConfigError) Error() string { return "local tls config: " + e.Err.Error() }
func (e *LocalConfigError) Unwrap() error { return e.Err }

func isConnRefused(err error) bool { return errors.Is(err, syscall.ECONNREFUSED) }

// errKind maps a terminal session error to the label used in logs and the
// errors-by-type metric.
func errKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrAuthTimeout):
		return "auth_timeout"
	case errors.Is(err, ErrAuthRejected):
		return "auth_rejected"
	case errors.Is(err, ErrAuthTransport):
		return "auth_transport"
	case errors.Is(err, ErrPrematureClose):
		return "premature_close"
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return "protocol"
	}
	var de *DialError
	if errors.As(err, &de) {
		if de.Refused {
			return de.Side + "_refused"
		}
		return de.Side + "_dial"
	}
	var ce *LocalConfigError
	if errors.As(err, &ce) {
		return "local_config"
	}
	return "io"
}
