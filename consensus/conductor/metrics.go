package conductor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"arnsmachine/arnsmachine"
)

var (
	promActionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "arnsmachine",
		Name:      "actions_applied_total",
		Help:      "Actions applied to the ledger, by engine and kind",
	}, []string{"engine", "kind"})
	promActionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "arnsmachine",
		Name:      "actions_rejected_total",
		Help:      "Actions rejected by validation or business rules, by engine, kind and reason",
	}, []string{"engine", "kind", "reason"})
	promHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "arnsmachine",
		Name:      "last_ticked_height",
	})
	promProtocolBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "arnsmachine",
		Name:      "protocol_balance",
		Help:      "Protocol balance in base units",
	})
	promGatewayCount = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "arnsmachine",
		Name:      "gateway_count",
	})
	promRecordCount = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "arnsmachine",
		Name:      "record_count",
	})
	promDemandFactor = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "arnsmachine",
		Name:      "demand_factor",
	})
)

// engineFor labels a kind with the engine registered for it.
func engineFor(kind string) string {
	if mind, ok := arnsmachine.WhichMindForKind(kind); ok {
		return mind
	}
	return "unknown"
}

func observe(l *Ledger) {
	promHeight.Set(float64(l.LastTickedHeight))
	promProtocolBalance.Set(float64(l.Balances.Get(l.Constants.ProtocolAccount)))
	promGatewayCount.Set(float64(len(l.Gateways)))
	promRecordCount.Set(float64(len(l.Records)))
	promDemandFactor.Set(l.Demand.Factor.InexactFloat64())
}
