package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several instances (tests, embedded
// servers) never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	OrdersCreated      prometheus.Counter
	OrdersCompleted    *prometheus.CounterVec
	PaymentsRecorded   *prometheus.CounterVec
	KitchenPublished   *prometheus.CounterVec
	KitchenDropped     prometheus.Counter
	KitchenSubscribers prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pos_orders_created_total",
			Help: "Orders created, staff and QR",
		}),
		OrdersCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_orders_completed_total",
			Help: "Orders moved to completed",
		}, []string{"path"}),
		PaymentsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_payments_recorded_total",
			Help: "Payment rows appended to the ledger",
		}, []string{"method"}),
		KitchenPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_kitchen_events_published_total",
			Help: "Kitchen broadcast events accepted for fan-out",
		}, []string{"action"}),
		KitchenDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pos_kitchen_events_dropped_total",
			Help: "Kitchen events dropped on a full buffer",
		}),
		KitchenSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pos_kitchen_subscribers",
			Help: "Connected kitchen displays",
		}),
	}

	m.registry.MustRegister(
		m.OrdersCreated,
		m.OrdersCompleted,
		m.PaymentsRecorded,
		m.KitchenPublished,
		m.KitchenDropped,
		m.KitchenSubscribers,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// EventPublished, EventDropped and SubscribersChanged let the kitchen hub
// report without importing prometheus.
func (m *Metrics) EventPublished(action string) {
	m.KitchenPublished.WithLabelValues(action).Inc()
}

func (m *Metrics) EventDropped() {
	m.KitchenDropped.Inc()
}

func (m *Metrics) SubscribersChanged(n int) {
	m.KitchenSubscribers.Set(float64(n))
}

// OrderCreated, OrderCompleted and PaymentRecorded are the service-side
// hooks.
func (m *Metrics) OrderCreated() {
	m.OrdersCreated.Inc()
}

func (m *Metrics) OrderCompleted(path string) {
	m.OrdersCompleted.WithLabelValues(path).Inc()
}

func (m *Metrics) PaymentRecorded(method string) {
	m.PaymentsRecorded.WithLabelValues(method).Inc()
}
