// Package metrics registers the bot's Prometheus collectors and serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RemoteFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "remote_fetches_total", Help: "Remote market data requests issued"},
		[]string{"symbol", "kind"},
	)
	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cache_hits_total", Help: "Price series served from cache"},
	)
	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cache_misses_total", Help: "Price series cache misses"},
	)
	RateLimitWaits = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "rate_limit_waits_total", Help: "Calls that blocked on the rate budget"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side", "status"},
	)
	RejectedOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_rejected_total", Help: "Orders rejected before submission"},
		[]string{"symbol"},
	)
	CyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cycles_total", Help: "Completed analysis cycles"},
	)
	SymbolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "symbol_errors_total", Help: "Per-symbol failures within a cycle"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(
		RemoteFetches, CacheHits, CacheMisses, RateLimitWaits,
		OrdersTotal, RejectedOrders, CyclesTotal, SymbolErrors,
	)
}

// Serve exposes /metrics on addr in a background goroutine and returns the
// server so callers can shut it down.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
