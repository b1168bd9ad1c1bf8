package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_registrations_total",
		Help: "Total number of successful user registrations.",
	})

	loginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Total number of login attempts by status.",
		},
		[]string{"status"},
	)

	refreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_refreshes_total",
			Help: "Total number of session renewals by channel (public, internal) and status.",
		},
		[]string{"channel", "status"},
	)

	subjectChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_subject_checks_total",
			Help: "Total number of subject status checks requested by the gateway.",
		},
		[]string{"status"},
	)
)

func statusLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
