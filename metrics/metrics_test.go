package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houseofcat/pistol/models"
)

func TestRouterMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRouterMetrics("", reg)
	require.NoError(t, m.Register())
	require.NoError(t, m.Register())

	// A second set of collectors with the same names is tolerated.
	other := NewRouterMetrics("", reg)
	assert.NoError(t, other.Register())
}

func TestRouterMetrics_RegisterTwiceSharesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewRouterMetrics("", reg)
	require.NoError(t, first.Register())

	second := NewRouterMetrics("", reg)
	require.NoError(t, second.Register())

	second.RecordError()
	second.RecordError()
	second.RecordOffer("orders", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(first.errorsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(first.offersTotal.WithLabelValues("orders", resultSuccess)))

	families, err := reg.Gather()
	require.NoError(t, err)

	var gathered float64
	for _, family := range families {
		if family.GetName() == "pistol_router_errors_total" {
			gathered = family.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, gathered)
}

func TestRouterMetrics_RegisterConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: DefaultNamespace,
		Subsystem: subsystem,
		Name:      "errors_total",
		Help:      "Errors counted by something else",
	})))

	m := NewRouterMetrics("", reg)
	assert.Error(t, m.Register())
}

func TestRouterMetrics_RecordOffer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRouterMetrics("test", reg)
	require.NoError(t, m.Register())

	m.RecordOffer("orders", nil)
	m.RecordOffer("orders", nil)
	m.RecordOffer("orders", errors.New("nope"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.offersTotal.WithLabelValues("orders", resultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.offersTotal.WithLabelValues("orders", resultFailure)))
}

func TestRouterMetrics_RecordProcessReceipt(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRouterMetrics("test", reg)
	require.NoError(t, m.Register())

	m.RecordProcessReceipt(&models.ProcessReceipt{TunnelID: "orders", Success: true, Duration: 5 * time.Millisecond})
	m.RecordProcessReceipt(&models.ProcessReceipt{TunnelID: "orders", Success: false, Duration: time.Millisecond})
	m.RecordProcessReceipt(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.processedTotal.WithLabelValues("orders", resultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.processedTotal.WithLabelValues("orders", resultFailure)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.processingSeconds))
}

func TestRouterMetrics_TunnelsAndErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRouterMetrics("test", reg)
	require.NoError(t, m.Register())

	m.SetTunnelCount(3)
	m.RecordError()
	m.RecordError()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.tunnelsCurrent))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.errorsTotal))

	m.Reset()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.tunnelsCurrent))
	assert.Equal(t, 0, testutil.CollectAndCount(m.offersTotal))
}
