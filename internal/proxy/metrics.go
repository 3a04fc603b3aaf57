package proxy

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

type metrics struct {
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	initialized     bool
}

func newMetrics() *metrics {
	m := &metrics{
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hangar",
			Subsystem: "router",
			Name:      "requests_total",
			Help:      "Count of proxied tenant requests",
		}, []string{"subdomain", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hangar",
			Subsystem: "router",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of proxied tenant requests",
			Buckets:   histogramBuckets,
		}, []string{"subdomain", "status"}),
	}
	collectors := []prometheus.Collector{m.requestTotal, m.requestDuration}
	for _, collector := range collectors {
		if err := prometheus.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch existing := already.ExistingCollector.(type) {
				case *prometheus.CounterVec:
					m.requestTotal = existing
				case *prometheus.HistogramVec:
					m.requestDuration = existing
				}
			}
		}
	}
	m.initialized = true
	return m
}

func (m *metrics) record(subdomain string, status int, duration time.Duration) {
	if !m.initialized {
		return
	}
	labels := prometheus.Labels{
		"subdomain": subdomain,
		"status":    strconv.Itoa(status),
	}
	m.requestTotal.With(labels).Inc()
	m.requestDuration.With(labels).Observe(duration.Seconds())
}
