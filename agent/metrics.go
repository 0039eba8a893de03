package agent

import "github.com/prometheus/client_golang/prometheus"

var toolCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "querygate_tool_calls_total",
		Help: "Tool calls by outcome",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(toolCallsTotal)
}
