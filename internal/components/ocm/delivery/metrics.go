package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var attemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ocm_delivery_attempts_total",
		Help: "Share delivery executions by outcome.",
	},
	[]string{"outcome"},
)

var submissionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ocm_delivery_submissions_total",
		Help: "Outbound shares by result of the first delivery attempt.",
	},
	[]string{"result"},
)
