package authn

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authenticationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_authentications_total",
			Help: "Total number of request authentications by result (accepted, renewed or the rejection kind).",
		},
		[]string{"result"},
	)

	renewalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_renewals_total",
			Help: "Total number of session renewals attempted by the gateway, by status.",
		},
		[]string{"status"},
	)
)
