package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokenVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reading_platform_token_verifications_total",
			Help: "Total number of access token verification attempts by status.",
		},
		[]string{"status"},
	)

	generationStreamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reading_platform_generation_streams_total",
			Help: "Total number of streamed story generations by transport and result.",
		},
		[]string{"transport", "result"},
	)

	registrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reading_platform_registrations_total",
		Help: "Total number of successful parent registrations.",
	})
)
