package announce

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matst80/tnnlr/internal/obs"
	"github.com/redis/go-redis/v9"
)

// Record is the JSON document fleet tooling reads to discover this agent.
type Record struct {
	ID       string    `json:"id"`
	URL      string    `json:"url"`
	Local    string    `json:"local"`
	Slots    int       `json:"slots"`
	Active   int       `json:"active"`
	Attempts uint64    `json:"attempts"`
	LastSeen time.Time `json:"last_seen"`
}

// Publisher keeps a presence record for this agent alive in Redis under a
// TTL'd key, refreshed on a heartbeat. Purely observational; publish
// failures are logged and never interrupt tunneling.
type Publisher struct {
	client   *redis.Client
	key      string
	ttl      time.Duration
	interval time.Duration
}

func NewPublisher(addr, password string, db int, agentID string) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &Publisher{
		client:   rdb,
		key:      "tnnlr:agent:" + agentID,
		ttl:      2 * time.Minute,
		interval: 30 * time.Second,
	}, nil
}

// Run publishes immediately and then on every heartbeat tick until ctx is
// cancelled, at which point the record is removed.
func (p *Publisher) Run(ctx context.Context, snapshot func() Record) {
	p.publish(ctx, snapshot())
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := p.client.Del(cleanupCtx, p.key).Err(); err != nil {
				obs.Error("announce.cleanup", obs.Fields{"err": err.Error()})
			}
			cancel()
			_ = p.client.Close()
			return
		case <-t.C:
			p.publish(ctx, snapshot())
		}
	}
}

func (p *Publisher) publish(ctx context.Context, rec Record) {
	rec.LastSeen = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		obs.Error("announce.marshal", obs.Fields{"err": err.Error()})
		return
	}
	if err := p.client.Set(ctx, p.key, data, p.ttl).Err(); err != nil {
		obs.Error("announce.publish", obs.Fields{"err": err.Error(), "key": p.key})
	}
}
