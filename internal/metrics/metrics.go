// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registrations counts registration attempts by result:
	// created, duplicate, invalid, error.
	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventpass",
		Name:      "registrations_total",
		Help:      "Registration attempts by result.",
	}, []string{"result"})

	// Checkins counts scan attempts by outcome:
	// success, already_scanned, not_registered, error.
	Checkins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventpass",
		Name:      "checkins_total",
		Help:      "Ticket scan attempts by outcome.",
	}, []string{"outcome"})

	// Resets counts administrative bulk resets.
	Resets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eventpass",
		Name:      "resets_total",
		Help:      "Administrative store resets.",
	})
)
