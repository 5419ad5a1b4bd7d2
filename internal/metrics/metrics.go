// Package metrics exposes prometheus instruments for the realm client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "realmpaint"

// Drop reasons used as the reason label of frames_dropped_total.
const (
	ReasonDecode = "decode"
	ReasonApply  = "apply"
)

// Metrics groups every instrument the connection manager updates.
type Metrics struct {
	registry *prometheus.Registry

	FramesReceived *prometheus.CounterVec
	FramesDropped  *prometheus.CounterVec
	Applied        *prometheus.CounterVec
	SendsDropped   prometheus.Counter
	Sent           *prometheus.CounterVec
	Connects       prometheus.Counter
	Reconnects     prometheus.Counter
	Indicator      prometheus.Gauge
}

// New registers all instruments on a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry registers all instruments on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FramesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Websocket frames received from the server by kind",
		}, []string{"kind"}),

		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Binary frames discarded because they could not be decoded or applied",
		}, []string{"reason"}),

		Applied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_applied_total",
			Help:      "Decoded messages handed to the session by type",
		}, []string{"type"}),

		SendsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_dropped_total",
			Help:      "Outbound messages discarded while the socket was not open",
		}),

		Sent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Outbound messages written to the socket by type",
		}, []string{"type"}),

		Connects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Successful websocket handshakes",
		}),

		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Connection attempts made after the first",
		}),

		Indicator: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indicator_state",
			Help:      "Connection indicator: 0 offline, 1 connecting, 2 online",
		}),
	}
}

// Registry returns the registry the instruments live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Value reads the current value of a counter or gauge. Other metric kinds
// and write failures read as zero.
func Value(m prometheus.Metric) float64 {
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		return 0
	}
	switch {
	case out.Counter != nil:
		return out.GetCounter().GetValue()
	case out.Gauge != nil:
		return out.GetGauge().GetValue()
	default:
		return 0
	}
}

// Sum adds the values of every child of a counter vector.
func Sum(vec *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric, 16)
	go func() {
		vec.Collect(ch)
		close(ch)
	}()
	var total float64
	for m := range ch {
		total += Value(m)
	}
	return total
}
