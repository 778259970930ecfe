// Package metrics exposes Prometheus collectors for transfers and serial state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transfer kinds.
const (
	KindFull    = "full"
	KindSOAOnly = "soa_only"
)

// Failure reasons.
const (
	ReasonRead      = "read"
	ReasonMalformed = "malformed"
	ReasonNoZone    = "no_zone"
	ReasonPack      = "pack"
	ReasonWrite     = "write"
)

// Metrics holds the collectors registered for one server.
type Metrics struct {
	transfers        *prometheus.CounterVec
	transferFailures *prometheus.CounterVec
	udpQueries       *prometheus.CounterVec
	currentSerial    prometheus.Gauge
	servedSerial     prometheus.Gauge
}

// New registers the collectors on reg.
// A nil reg creates collectors that are not exported anywhere.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		transfers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xfrserver_transfers_total",
				Help: "Zone transfers answered, by query type and answer kind.",
			},
			[]string{
				"qtype", // "AXFR", "IXFR"
				"kind",  // "full", "soa_only"
			},
		),
		transferFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xfrserver_transfer_failures_total",
				Help: "TCP connections closed without a transfer answer.",
			},
			[]string{"reason"},
		),
		udpQueries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xfrserver_udp_queries_total",
				Help: "SOA queries answered over UDP, by response code.",
			},
			[]string{"rcode"},
		),
		currentSerial: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "xfrserver_current_serial",
				Help: "Serial currently offered to clients.",
			},
		),
		servedSerial: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "xfrserver_served_serial",
				Help: "Serial of the last completed transfer.",
			},
		),
	}
}

// ObserveTransfer counts an answered transfer.
func (m *Metrics) ObserveTransfer(qtype string, full bool) {
	kind := KindSOAOnly
	if full {
		kind = KindFull
	}
	m.transfers.WithLabelValues(qtype, kind).Inc()
}

// ObserveTransferFailure counts a connection closed without an answer.
func (m *Metrics) ObserveTransferFailure(reason string) {
	m.transferFailures.WithLabelValues(reason).Inc()
}

// ObserveUDPQuery counts a UDP answer with the given rcode name.
func (m *Metrics) ObserveUDPQuery(rcode string) {
	m.udpQueries.WithLabelValues(rcode).Inc()
}

// SetCurrentSerial records the serial now offered.
func (m *Metrics) SetCurrentSerial(serial uint32) {
	m.currentSerial.Set(float64(serial))
}

// SetServedSerial records the serial of the last completed transfer.
func (m *Metrics) SetServedSerial(serial uint32) {
	m.servedSerial.Set(float64(serial))
}
