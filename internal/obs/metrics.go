package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveTunnels          = promauto.NewGauge(prometheus.GaugeOpts{Name: "tnnlr_active_tunnels", Help: "Tunnel sessions currently running (any phase)"})
	SplicingTunnels        = promauto.NewGauge(prometheus.GaugeOpts{Name: "tnnlr_splicing_tunnels", Help: "Tunnel sessions past READY and forwarding bytes"})
	SessionRestartsTotal   = promauto.NewCounter(prometheus.CounterOpts{Name: "tnnlr_session_restarts_total", Help: "Tunnel sessions completed (each is restarted unless the pool is stopping)"})
	ErrorsTotal            = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tnnlr_errors_total", Help: "Session failures by kind"}, []string{"type"})
	ForwardedBytesTotal    = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tnnlr_forwarded_bytes_total", Help: "Bytes spliced by direction (down=remote to local, up=local to remote)"}, []string{"direction"})
	SessionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{Name: "tnnlr_session_duration_seconds", Help: "Session lifetime seconds", Buckets: prometheus.ExponentialBuckets(0.01, 2, 16)})
	RequestsObservedTotal  = promauto.NewCounter(prometheus.CounterOpts{Name: "tnnlr_requests_observed_total", Help: "HTTP request lines sniffed in tunneled traffic"})
)
