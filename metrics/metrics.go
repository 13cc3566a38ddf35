package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/houseofcat/pistol/models"
)

const (
	// DefaultNamespace is used when no namespace is configured.
	DefaultNamespace = "pistol"

	subsystem = "router"

	resultSuccess = "success"
	resultFailure = "failure"
)

// RouterMetrics tracks offers, processing outcomes and registered tunnels.
type RouterMetrics struct {
	mu sync.Mutex

	offersTotal       *prometheus.CounterVec
	processedTotal    *prometheus.CounterVec
	processingSeconds *prometheus.HistogramVec
	tunnelsCurrent    prometheus.Gauge
	errorsTotal       prometheus.Counter

	registerer prometheus.Registerer
	registered bool
}

// NewRouterMetrics creates the collectors. A nil registerer falls back to the prometheus default registerer.
func NewRouterMetrics(namespace string, registerer prometheus.Registerer) *RouterMetrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &RouterMetrics{
		registerer: registerer,
		offersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "offers_total",
				Help:      "Total number of messages offered to tunnels",
			},
			[]string{"tunnel_id", "result"},
		),
		processedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "processed_total",
				Help:      "Total number of messages processed by tunnel workers",
			},
			[]string{"tunnel_id", "result"},
		),
		processingSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "processing_seconds",
				Help:      "Time spent in transform and callback per message",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tunnel_id"},
		),
		tunnelsCurrent: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "tunnels_current",
				Help:      "Current number of registered tunnels",
			},
		),
		errorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "errors_total",
				Help:      "Total number of errors reported to the service",
			},
		),
	}
}

// Register registers the collectors. Safe to call multiple times.
// When another instance already registered the same metrics, its collectors are adopted.
// Call it before recording.
func (m *RouterMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	var err error
	if m.offersTotal, err = register(m.registerer, m.offersTotal); err != nil {
		return err
	}
	if m.processedTotal, err = register(m.registerer, m.processedTotal); err != nil {
		return err
	}
	if m.processingSeconds, err = register(m.registerer, m.processingSeconds); err != nil {
		return err
	}
	if m.tunnelsCurrent, err = register(m.registerer, m.tunnelsCurrent); err != nil {
		return err
	}
	if m.errorsTotal, err = register(m.registerer, m.errorsTotal); err != nil {
		return err
	}

	m.registered = true
	return nil
}

func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) (C, error) {
	err := registerer.Register(collector)
	if err == nil {
		return collector, nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}

	return collector, err
}

// RecordOffer counts an offer. Failed offers without a tunnel are counted under an empty tunnel id.
func (m *RouterMetrics) RecordOffer(tunnelID string, err error) {
	m.offersTotal.WithLabelValues(tunnelID, result(err == nil)).Inc()
}

// RecordProcessReceipt counts a processed message and observes its duration.
func (m *RouterMetrics) RecordProcessReceipt(receipt *models.ProcessReceipt) {
	if receipt == nil {
		return
	}

	m.processedTotal.WithLabelValues(receipt.TunnelID, result(receipt.Success)).Inc()
	m.processingSeconds.WithLabelValues(receipt.TunnelID).Observe(receipt.Duration.Seconds())
}

// SetTunnelCount sets the registered tunnel gauge.
func (m *RouterMetrics) SetTunnelCount(count int) {
	m.tunnelsCurrent.Set(float64(count))
}

// RecordError counts an error seen by the service.
func (m *RouterMetrics) RecordError() {
	m.errorsTotal.Inc()
}

// Reset clears the labelled collectors (useful for testing).
func (m *RouterMetrics) Reset() {
	m.offersTotal.Reset()
	m.processedTotal.Reset()
	m.processingSeconds.Reset()
	m.tunnelsCurrent.Set(0)
}

func result(success bool) string {
	if success {
		return resultSuccess
	}
	return resultFailure
}
