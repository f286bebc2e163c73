package httpx

import "regexp"

// hostHeaderPattern matches the first Host header of an HTTP/1.x request
// head. The leading CRLF anchors it to a header line so a "Host:" string
// inside payload bytes at the very start of a chunk cannot match.
var hostHeaderPattern = regexp.MustCompile(`(\r\n[Hh]ost: )(\S+)`)

// HostRewriter substitutes the value of the first HTTP Host header seen on
// a byte stream and then degrades to a passthrough. The one-shot latch
// keeps pipelined requests on the same connection untouched. A Host line
// split across two chunks is not rewritten; the original header survives.
type HostRewriter struct {
	host     string
	replaced bool
}

func NewHostRewriter(host string) *HostRewriter {
	return &HostRewriter{host: host}
}

// Apply returns p with at most one Host value substituted. The returned
// slice aliases p whenever no rewrite occurred.
func (h *HostRewriter) Apply(p []byte) []byte {
	if h.replaced {
		return p
	}
	m := hostHeaderPattern.FindSubmatchIndex(p)
	if m == nil {
		return p
	}
	out := make([]byte, 0, len(p)+len(h.host))
	out = append(out, p[:m[3]]...)
	out = append(out, h.host...)
	out = append(out, p[m[5]:]...)
	h.replaced = true
	return out
}

// Replaced reports whether the one-shot substitution has fired.
func (h *HostRewriter) Replaced() bool { return h.replaced }

// RequestInfo is the method/path pair sniffed from a tunneled request line.
type RequestInfo struct {
	Method string
	Path   string
}

var requestLinePattern = regexp.MustCompile(`^(\w+) (\S+)`)

// SniffRequestLine extracts an HTTP-style request line from the start of a
// chunk. Best effort: it only sees what the chunk boundary exposes.
func SniffRequestLine(p []byte) (RequestInfo, bool) {
	m := requestLinePattern.FindSubmatch(p)
	if m == nil {
		return RequestInfo{}, false
	}
	return RequestInfo{Method: string(m[1]), Path: string(m[2])}, true
}
