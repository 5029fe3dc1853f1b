package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveRelays       = promauto.NewGauge(prometheus.GaugeOpts{Name: "gorealm_active_relays", Help: "Currently running relay instances"})
	TCPSessionsTotal   = promauto.NewCounter(prometheus.CounterOpts{Name: "gorealm_tcp_sessions_total", Help: "TCP sessions accepted"})
	UDPSessionsTotal   = promauto.NewCounter(prometheus.CounterOpts{Name: "gorealm_udp_sessions_total", Help: "UDP sessions created"})
	UDPSessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{Name: "gorealm_udp_sessions_evicted_total", Help: "UDP sessions evicted after the idle window"})
	BytesRelayed       = promauto.NewCounterVec(prometheus.CounterOpts{Name: "gorealm_bytes_relayed_total", Help: "Relayed bytes by direction"}, []string{"direction"})
	SessionErrors      = promauto.NewCounterVec(prometheus.CounterOpts{Name: "gorealm_session_errors_total", Help: "Failed sessions by error kind"}, []string{"kind"})
	SessionDuration    = promauto.NewHistogram(prometheus.HistogramOpts{Name: "gorealm_tcp_session_duration_seconds", Help: "TCP session lifetime seconds", Buckets: prometheus.ExponentialBuckets(0.01, 2, 16)})
)
