package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestKitchenObserver(t *testing.T) {
	m := New()
	m.EventPublished("order_created")
	m.EventPublished("order_created")
	m.EventDropped()
	m.SubscribersChanged(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.KitchenPublished.WithLabelValues("order_created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.KitchenDropped))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.KitchenSubscribers))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.OrdersCreated.Inc()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pos_orders_created_total 1")
}

func TestInstancesAreIndependent(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}

func TestServiceHooks(t *testing.T) {
	m := New()
	m.OrderCreated()
	m.OrderCompleted("ledger")
	m.OrderCompleted("ledger")
	m.OrderCompleted("close")
	m.PaymentRecorded("cash")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OrdersCompleted.WithLabelValues("ledger")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersCompleted.WithLabelValues("close")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentsRecorded.WithLabelValues("cash")))
}
