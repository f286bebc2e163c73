package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/matst80/tnnlr/internal/announce"
	"github.com/matst80/tnnlr/internal/endpoint"
	"github.com/matst80/tnnlr/internal/httpx"
	"github.com/matst80/tnnlr/internal/obs"
	"github.com/matst80/tnnlr/internal/tunnel"
)

// shutdownGrace is how long active tunnels get to drain after a signal.
const shutdownGrace = 5 * time.Second

func main() {
	parseConfig()
	if err := cfg.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(1)
	}
	if cfg.Debug {
		obs.EnableDebug(true)
	}
	localAddr := net.JoinHostPort(cfg.LocalHost, strconv.Itoa(cfg.Port))
	obs.Info("agent.start", obs.Fields{"url": cfg.APIURL, "local": localAddr, "max_conns": cfg.MaxConnections})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ac := &endpoint.Client{
		APIURL:     cfg.APIURL,
		APIKey:     cfg.APIKey,
		Retries:    cfg.Retry,
		RetryDelay: time.Duration(cfg.RetryDelay * float64(time.Second)),
	}
	ep, err := ac.Acquire(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			obs.Info("agent.shutdown.signal", obs.Fields{"phase": "acquire"})
			return
		}
		obs.Error("endpoint.acquire", obs.Fields{"err": err.Error()})
		os.Exit(1)
	}
	obs.Info("endpoint.assigned", obs.Fields{"id": ep.ID, "url": ep.URL, "host": ep.Host, "port": ep.Port, "max_conn_count": ep.MaxConnCount})
	if cfg.URLFile != "" {
		if werr := os.WriteFile(cfg.URLFile, []byte(ep.URL+"\n"), 0o644); werr != nil {
			obs.Error("urlfile.write", obs.Fields{"err": werr.Error(), "path": cfg.URLFile})
		}
	}

	slots := cfg.MaxConnections
	if ep.MaxConnCount > 0 && ep.MaxConnCount < slots {
		slots = ep.MaxConnCount
	}

	tcfg := &tunnel.Config{
		RemoteHost: ep.Host,
		RemotePort: ep.Port,
		SecretKey:  ep.SecretKey,
		Local: tunnel.LocalConfig{
			Host:             cfg.LocalHost,
			Port:             cfg.Port,
			HTTPS:            cfg.LocalHTTPS,
			AllowInvalidCert: cfg.LocalInsecure,
			CertFile:         cfg.LocalCertFile,
			KeyFile:          cfg.LocalKeyFile,
			CAFile:           cfg.LocalCAFile,
		},
		OnRequest: func(r httpx.RequestInfo) {
			obs.Debug("request", obs.Fields{"method": r.Method, "path": r.Path})
		},
	}
	pool := tunnel.NewPool(tcfg, slots)

	state := &runState{}
	if cfg.MetricsAddr != "" {
		go startMetricsServer(cfg.MetricsAddr, pool, state, ep.URL)
	}
	if cfg.AnnounceRedis != "" {
		pub, aerr := announce.NewPublisher(cfg.AnnounceRedis, cfg.AnnouncePass, cfg.AnnounceDB, ep.ID)
		if aerr != nil {
			obs.Error("announce.connect", obs.Fields{"err": aerr.Error(), "addr": cfg.AnnounceRedis})
		} else {
			go pub.Run(ctx, func() announce.Record {
				st := pool.Snapshot()
				var total uint64
				for _, a := range st.Attempts {
					total += a
				}
				return announce.Record{ID: ep.ID, URL: ep.URL, Local: localAddr, Slots: st.Slots, Active: st.Active, Attempts: total}
			})
		}
	}

	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()
	state.setReady(true)
	obs.Info("agent.ready", obs.Fields{"slots": slots})

	<-ctx.Done()
	state.setClosing(true)
	obs.Info("agent.shutdown.signal", obs.Fields{"grace_ms": shutdownGrace.Milliseconds()})
	select {
	case <-done:
		obs.Info("agent.shutdown.complete", obs.Fields{})
	case <-time.After(shutdownGrace):
		obs.Warn("agent.shutdown.forced", obs.Fields{})
	}
}
