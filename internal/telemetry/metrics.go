package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	CallsOriginated  = prometheus.NewCounter(prometheus.CounterOpts{Name: "dialer_calls_originated_total", Help: "Origination commands issued"})
	CallsAbandoned   = prometheus.NewCounter(prometheus.CounterOpts{Name: "dialer_calls_abandoned_total", Help: "Calls declared abandoned after the safe-harbor window"})
	CallsBridged     = prometheus.NewCounter(prometheus.CounterOpts{Name: "dialer_calls_bridged_total", Help: "Answered calls bridged to an agent in time"})
	LeadsDeferred    = prometheus.NewCounter(prometheus.CounterOpts{Name: "dialer_leads_deferred_total", Help: "Leads skipped for calling-window or resource reasons"})
	LeadsCapped      = prometheus.NewCounter(prometheus.CounterOpts{Name: "dialer_leads_capped_total", Help: "Leads retired at the daily attempt cap"})
	CycleErrors      = prometheus.NewCounter(prometheus.CounterOpts{Name: "dialer_cycle_errors_total", Help: "Orchestrator cycles that ended in a logged error"})
	PacingGauge      = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "dialer_pacing_ratio", Help: "Current pacing ratio per campaign"}, []string{"campaign"})
	ActiveCampaigns  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "dialer_active_campaigns", Help: "Campaign loops currently registered"})
	PendingSafeHarbor = prometheus.NewGauge(prometheus.GaugeOpts{Name: "dialer_safe_harbor_pending", Help: "Answered calls awaiting bridge inside the safe-harbor window"})
)

// Handler exposes /metrics with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			CallsOriginated,
			CallsAbandoned,
			CallsBridged,
			LeadsDeferred,
			LeadsCapped,
			CycleErrors,
			PacingGauge,
			ActiveCampaigns,
			PendingSafeHarbor,
		)
	})
	return promhttp.Handler()
}
