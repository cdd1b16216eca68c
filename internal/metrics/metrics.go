// Package metrics содержит prometheus-счётчики движка подписок и рефералов.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubscriptionGrants считает начисления доступа по источнику:
	// paid или free.
	SubscriptionGrants = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mechanic_access_subscription_grants_total",
		Help: "Total subscription grants by source.",
	}, []string{"source"})

	// ReferralActivations считает первые активации рефералов.
	ReferralActivations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mechanic_access_referral_activations_total",
		Help: "Total first-time referral activations counted toward cycles.",
	})

	// RewardsAwarded считает начисленные реферальные награды.
	RewardsAwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mechanic_access_referral_rewards_awarded_total",
		Help: "Total referral reward cycles awarded.",
	})
)
