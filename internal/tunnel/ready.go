package tunnel

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/matst80/tnnlr/internal/proto"
)

// awaitReady drains control lines until the remote signals READY, answering
// each keepalive PING with a PONG. There is no deadline here; the wait is
// bounded only by the scanner's buffer cap. It returns the bytes that
// arrived after the READY terminator, which are the head of the tunneled
// payload and must reach the local socket before anything read later.
func awaitReady(conn net.Conn, sc *proto.LineScanner) ([]byte, error) {
	buf := make([]byte, 4096)
	for {
		for {
			line, ok := sc.Line()
			if !ok {
				break
			}
			switch line {
			case proto.LineReady:
				return sc.Residue(), nil
			case proto.LinePing:
				if _, err := conn.Write([]byte(proto.LinePong + "\n")); err != nil {
					return nil, fmt.Errorf("write %s: %w", proto.LinePong, err)
				}
			default:
				// Unknown pre-READY chatter is tolerated and dropped.
			}
		}
		n, err := conn.Read(buf)
		if n > 0 {
			if ferr := sc.Feed(buf[:n]); ferr != nil {
				return nil, &ProtocolError{Reason: "unexpected data before READY"}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrPrematureClose
			}
			return nil, fmt.Errorf("await ready: %w", err)
		}
	}
}
