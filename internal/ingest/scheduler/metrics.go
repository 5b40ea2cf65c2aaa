package scheduler

import "github.com/prometheus/client_golang/prometheus"

// dispatchDropped conta dispatches descartados por excederem o SoftLimit
// (TTL) entre o disparo do ticker/cron e a execução de fato no pool,
// exposto em /metrics pelo mesmo promhttp.Handler que internal/shared/metrics
// já registra.
var dispatchDropped = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scheduler_dispatch_dropped_total",
		Help: "Total de dispatches descartados por exceder o TTL (SoftLimit) antes de rodar.",
	},
	[]string{"queue", "job"},
)

func init() {
	prometheus.MustRegister(dispatchDropped)
}
