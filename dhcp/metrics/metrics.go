// Package metrics exposes the server's Prometheus instrumentation,
// grounded in peterrosell-provision/midlayer/metrics.go and
// peterrosell-provision/utils/prom.go's wrapper style. Purely observational:
// nothing here gates or alters a core decision.
package metrics

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the counters and gauges the dispatcher reports to.
type Metrics struct {
	LeasesActive  *prometheus.GaugeVec
	OffersTotal   *prometheus.CounterVec
	AcksTotal     *prometheus.CounterVec
	NaksTotal     *prometheus.CounterVec
	DecodeErrors  *prometheus.CounterVec
	PoolExhausted *prometheus.CounterVec
}

// New registers and returns a fresh Metrics bundle on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LeasesActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dhcp", Name: "leases_active",
			Help: "Number of currently valid leases, per interface.",
		}, []string{"iface"}),
		OffersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhcp", Name: "offers_total",
			Help: "DHCPOFFER replies sent, per interface.",
		}, []string{"iface"}),
		AcksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhcp", Name: "acks_total",
			Help: "DHCPACK replies sent, per interface.",
		}, []string{"iface"}),
		NaksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhcp", Name: "naks_total",
			Help: "DHCPNAK replies sent, per interface.",
		}, []string{"iface"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhcp", Name: "decode_errors_total",
			Help: "Datagrams dropped for failing to decode, per interface.",
		}, []string{"iface"}),
		PoolExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhcp", Name: "pool_exhausted_total",
			Help: "DISCOVERs that found no address available, per interface.",
		}, []string{"iface"}),
	}
	reg.MustRegister(m.LeasesActive, m.OffersTotal, m.AcksTotal, m.NaksTotal, m.DecodeErrors, m.PoolExhausted)
	return m
}

// Serve starts an HTTP listener exposing /metrics, mirroring
// midlayer.ServeMetrics's shape. The caller should Shutdown the returned
// server during process teardown.
func Serve(listenAt string) (*http.Server, error) {
	conn, err := net.Listen("tcp", listenAt)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	svr := &http.Server{Addr: listenAt, Handler: mux}
	go func() {
		_ = svr.Serve(conn)
	}()
	return svr, nil
}

// Shutdown gracefully stops a server started by Serve.
func Shutdown(ctx context.Context, svr *http.Server) error {
	return svr.Shutdown(ctx)
}
