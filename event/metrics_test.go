package event

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg, "pubsub")
	require.NoError(t, err)

	d := newTestDispatcher(WithMetrics(m))

	a, _ := d.Subscribe("click", Func(func(any) {}))
	_, _ = d.Subscribe("click", FuncE(func(any) error { return errors.New("nope") }))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.handlers.WithLabelValues("click")))

	require.NoError(t, d.Publish("click", nil))
	require.NoError(t, d.Publish("click", nil))
	require.NoError(t, d.Publish("empty", nil))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.publishTotal.WithLabelValues("click")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.publishTotal.WithLabelValues("empty")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.deliveriesTotal.WithLabelValues("click")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.failuresTotal.WithLabelValues("click")))

	_, _ = d.Subscribe("", nil)
	_ = d.Off("")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.invalidTotal.WithLabelValues("subscribe")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.invalidTotal.WithLabelValues("off")))

	_, _ = d.Unsubscribe("click", a)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.handlers.WithLabelValues("click")))

	require.NoError(t, d.Off("click"))
	assert.Equal(t, 0, testutil.CollectAndCount(m.handlers))
}

func TestMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg, "pubsub")
	require.NoError(t, err)

	_, err = NewMetrics(reg, "pubsub")
	assert.Error(t, err)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.published("x")
		m.delivered("x")
		m.failed("x")
		m.rejected("x")
		m.setHandlers("x", 1)
	})
}
