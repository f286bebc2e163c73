package proto

import (
	"bytes"
	"errors"
	"testing"
)

func TestLineScannerFragmentedLine(t *testing.T) {
	sc := &LineScanner{}
	if err := sc.Feed([]byte("RE")); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if _, ok := sc.Line(); ok {
		t.Error("expected no complete line yet")
	}
	if err := sc.Feed([]byte("ADY\ntail")); err != nil {
		t.Fatalf("feed: %v", err)
	}
	line, ok := sc.Line()
	if !ok || line != "READY" {
		t.Errorf("expected READY, got %q ok=%v", line, ok)
	}
	if got := sc.Residue(); !bytes.Equal(got, []byte("tail")) {
		t.Errorf("expected residue %q, got %q", "tail", got)
	}
}

func TestLineScannerTrimsWhitespace(t *testing.T) {
	sc := &LineScanner{}
	if err := sc.Feed([]byte("  PING \r\n")); err != nil {
		t.Fatalf("feed: %v", err)
	}
	line, ok := sc.Line()
	if !ok || line != "PING" {
		t.Errorf("expected trimmed PING, got %q ok=%v", line, ok)
	}
}

func TestLineScannerMultipleLinesAndResidue(t *testing.T) {
	sc := &LineScanner{}
	if err := sc.Feed([]byte("A\nB\nTAIL")); err != nil {
		t.Fatalf("feed: %v", err)
	}
	for _, want := range []string{"A", "B"} {
		line, ok := sc.Line()
		if !ok || line != want {
			t.Fatalf("expected %q, got %q ok=%v", want, line, ok)
		}
	}
	if _, ok := sc.Line(); ok {
		t.Error("expected no further line")
	}
	if got := sc.Residue(); !bytes.Equal(got, []byte("TAIL")) {
		t.Errorf("expected residue TAIL, got %q", got)
	}
}

func TestLineScannerBufferCap(t *testing.T) {
	sc := &LineScanner{}
	junk := bytes.Repeat([]byte("x"), MaxControlBuffer)
	if err := sc.Feed(junk); err != nil {
		t.Fatalf("exactly %d bytes should fit: %v", MaxControlBuffer, err)
	}
	if err := sc.Feed([]byte("x")); !errors.Is(err, ErrControlBufferFull) {
		t.Errorf("expected ErrControlBufferFull past the cap, got %v", err)
	}
}

func TestLineScannerCapDrainedByLines(t *testing.T) {
	// Newline-bearing chatter keeps draining, so no overflow.
	sc := &LineScanner{}
	chunk := append(bytes.Repeat([]byte("y"), 1000), '\n')
	for i := 0; i < 100; i++ {
		if err := sc.Feed(chunk); err != nil {
			t.Fatalf("feed %d: %v", i, err)
		}
		for {
			if _, ok := sc.Line(); !ok {
				break
			}
		}
	}
}
