package main

import (
	"time"

	"github.com/matst80/tnnlr/internal/tunnel"
)

// Stats is the state endpoint document.
type Stats struct {
	URL      string   `json:"url"`
	Slots    int      `json:"slots"`
	Active   int      `json:"active"`
	Attempts []uint64 `json:"attempts"`
	Now      string   `json:"now"`
}

func collectStats(p *tunnel.Pool, publicURL string) Stats {
	st := p.Snapshot()
	return Stats{
		URL:      publicURL,
		Slots:    st.Slots,
		Active:   st.Active,
		Attempts: st.Attempts,
		Now:      time.Now().UTC().Format(time.RFC3339),
	}
}
