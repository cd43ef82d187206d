// Package metrics exposes Prometheus collectors and the operator HTTP surface.
package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lpmaker-go/internal/market"
)

// Version is reported by the /version route.
var Version = "0.1"

var (
	MarketEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "market_events_total", Help: "Market data events ingested"},
		[]string{"symbol", "kind"},
	)
	Cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cycles_total", Help: "Per-pair decision cycles by outcome"},
		[]string{"pair", "result"},
	)
	DataWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "data_warnings_total", Help: "Recoverable data quality conditions"},
		[]string{"pair", "kind"},
	)
	LiquidityChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "liquidity_changes_total", Help: "Liquidity changes submitted"},
		[]string{"pair", "kind", "result"},
	)
	ActivePositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "active_positions", Help: "Open liquidity positions"},
	)
	CollectedFees = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "collected_fees", Help: "Running total of collected fees"},
	)
)

func init() {
	prometheus.MustRegister(MarketEvents, Cycles, DataWarnings, LiquidityChanges, ActivePositions, CollectedFees)
}

// Route mounts an extra handler next to /metrics.
type Route struct {
	Pattern string
	Handler http.Handler
}

// Serve starts the metrics listener in the background with /metrics, /version, and any extra routes.
func Serve(addr string, routes ...Route) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(Version))
	})
	for _, r := range routes {
		if r.Pattern != "" && r.Handler != nil {
			mux.Handle(r.Pattern, r.Handler)
		}
	}
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// PositionsHandler renders the current position set as JSON.
func PositionsHandler(source func() []market.Position) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		positions := source()
		if positions == nil {
			positions = []market.Position{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(positions); err != nil {
			http.Error(w, "cannot encode positions", http.StatusInternalServerError)
		}
	})
}
