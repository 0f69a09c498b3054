package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokenExchanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dirgate_token_exchanges_total",
		Help: "Token exchanges against the identity provider, by flow and outcome.",
	}, []string{"flow", "outcome"})

	credCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dirgate_credential_cache_lookups_total",
		Help: "Per-account credential cache lookups, by result.",
	}, []string{"result"})
)
