package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var profilesCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "user_profiles_created_total",
		Help: "Profile creation attempts by outcome.",
	},
	[]string{"status"},
)
