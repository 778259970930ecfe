package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTransfer("AXFR", true)
	m.ObserveTransfer("IXFR", false)
	m.ObserveTransfer("IXFR", false)
	m.ObserveTransferFailure(ReasonNoZone)
	m.ObserveUDPQuery("REFUSED")
	m.SetCurrentSerial(3)
	m.SetServedSerial(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.transfers.WithLabelValues("AXFR", KindFull)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transfers.WithLabelValues("IXFR", KindSOAOnly)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transferFailures.WithLabelValues(ReasonNoZone)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.udpQueries.WithLabelValues("REFUSED")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.currentSerial))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.servedSerial))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 5)
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	// Two servers in one process must not collide
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
