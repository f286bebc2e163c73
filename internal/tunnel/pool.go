package tunnel

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/matst80/tnnlr/internal/obs"
)

const (
	defaultRestartMin = 500 * time.Millisecond
	defaultRestartMax = 15 * time.Second
)

// Pool keeps a fixed number of tunnel sessions perpetually alive against
// one rendezvous endpoint. Slots restart unconditionally; there is no
// attempt cap.
type Pool struct {
	cfg   *Config
	slots int

	restartMin time.Duration
	restartMax time.Duration

	mu       sync.Mutex
	attempts []uint64
	active   int
}

// Stats is a point-in-time pool snapshot for the state endpoint and the
// presence announcer.
type Stats struct {
	Slots    int      `json:"slots"`
	Active   int      `json:"active"`
	Attempts []uint64 `json:"attempts"`
}

func NewPool(cfg *Config, slots int) *Pool {
	if slots < 1 {
		slots = 1
	}
	return &Pool{
		cfg:        cfg,
		slots:      slots,
		restartMin: defaultRestartMin,
		restartMax: defaultRestartMax,
		attempts:   make([]uint64, slots),
	}
}

// Run blocks until ctx is cancelled and every slot has wound down.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.slots; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			p.runSlot(ctx, slot)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) runSlot(ctx context.Context, slot int) {
	b := &backoff.Backoff{Min: p.restartMin, Max: p.restartMax, Jitter: true}
	for {
		if ctx.Err() != nil {
			return
		}
		attempt := p.bumpAttempt(slot)
		sess := newSession(p.cfg, slot)
		p.addActive(1)
		obs.ActiveTunnels.Inc()
		start := time.Now()
		err := sess.Run(ctx)
		obs.ActiveTunnels.Dec()
		p.addActive(-1)
		obs.SessionDurationSeconds.Observe(time.Since(start).Seconds())
		obs.SessionRestartsTotal.Inc()
		if err != nil {
			kind := errKind(err)
			obs.ErrorsTotal.WithLabelValues(kind).Inc()
			obs.Error("session.failed", obs.Fields{"slot": slot, "attempt": attempt, "kind": kind, "err": err.Error()})
		} else {
			obs.Info("session.closed", obs.Fields{"slot": slot, "attempt": attempt})
		}
		if sess.reachedSplicing() {
			b.Reset()
		}
		if ctx.Err() != nil {
			return
		}
		delay := b.Duration()
		obs.Debug("session.restart", obs.Fields{"slot": slot, "delay_ms": delay.Milliseconds()})
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (p *Pool) bumpAttempt(slot int) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[slot]++
	return p.attempts[slot]
}

func (p *Pool) addActive(d int) {
	p.mu.Lock()
	p.active += d
	p.mu.Unlock()
}

// Snapshot is safe to call concurrently while the pool runs.
func (p *Pool) Snapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	attempts := make([]uint64, len(p.attempts))
	copy(attempts, p.attempts)
	return Stats{Slots: p.slots, Active: p.active, Attempts: attempts}
}
