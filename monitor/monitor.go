// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OnlinePlayers   prometheus.Gauge
	SpawnedVehicles prometheus.Gauge
	EventsReceived  prometheus.Counter
	EventsRejected  *prometheus.CounterVec
	ChatMessages    prometheus.Counter
	FanoutSize      prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of identified players",
		}),
		SpawnedVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spawned_vehicles",
			Help:      "Number of spawned vehicles",
		}),
		EventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Total number of inbound events",
		}),
		EventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Total number of rejected events by reason",
		}, []string{"reason"}),
		ChatMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Total number of chat messages relayed",
		}),
		FanoutSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_fanout_size",
			Help:      "Number of sessions reached per broadcast",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
	}

	prometheus.MustRegister(
		m.OnlinePlayers,
		m.SpawnedVehicles,
		m.EventsReceived,
		m.EventsRejected,
		m.ChatMessages,
		m.FanoutSize,
	)

	return m
}

type Monitor struct {
	metrics   *Metrics
	startTime time.Time
}

func NewMonitor(namespace string) *Monitor {
	return &Monitor{
		metrics:   NewMetrics(namespace),
		startTime: time.Now(),
	}
}

func (m *Monitor) StartServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	// 添加expvar指标
	expvar.Publish("uptime", expvar.Func(func() interface{} {
		return time.Since(m.startTime).Seconds()
	}))
	mux.Handle("/debug/vars", expvar.Handler())

	go http.ListenAndServe(addr, mux)
}

func (m *Monitor) Uptime() time.Duration {
	return time.Since(m.startTime)
}

func (m *Monitor) SetOnlinePlayers(count int) {
	if m == nil {
		return
	}
	m.metrics.OnlinePlayers.Set(float64(count))
}

func (m *Monitor) SetSpawnedVehicles(count int) {
	if m == nil {
		return
	}
	m.metrics.SpawnedVehicles.Set(float64(count))
}

func (m *Monitor) IncEventsReceived() {
	if m == nil {
		return
	}
	m.metrics.EventsReceived.Inc()
}

func (m *Monitor) IncEventsRejected(reason string) {
	if m == nil {
		return
	}
	m.metrics.EventsRejected.WithLabelValues(reason).Inc()
}

func (m *Monitor) IncChatMessages() {
	if m == nil {
		return
	}
	m.metrics.ChatMessages.Inc()
}

func (m *Monitor) ObserveFanout(sessions int) {
	if m == nil {
		return
	}
	m.metrics.FanoutSize.Observe(float64(sessions))
}
