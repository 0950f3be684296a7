package captcha

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChallengesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formshield_challenges_issued",
		Help: "The total number of proof-of-work challenges issued",
	}, []string{"algorithm"})

	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formshield_verifications_total",
		Help: "The total number of CAPTCHA verifications by provider and reason",
	}, []string{"provider", "reason"})

	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formshield_provider_errors_total",
		Help: "The total number of transport or decode failures talking to external verification endpoints",
	}, []string{"provider"})
)
