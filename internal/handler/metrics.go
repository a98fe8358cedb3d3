package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Бизнес-метрики движка. HTTP-метрики снимает gin-prometheus отдельно.
var (
	choicesResolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "story_engine_choices_resolved_total",
		Help: "Number of successfully resolved choice traversals.",
	})

	premiumPurchasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "story_engine_premium_purchases_total",
		Help: "Number of premium choices unlocked with a balance debit.",
	})

	balanceCreditsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "story_engine_balance_credits_total",
		Help: "Number of balance top-ups applied.",
	})
)
