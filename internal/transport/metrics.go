package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_api_requests_total",
			Help: "Total number of API requests issued through the dispatcher",
		},
		[]string{"method", "path", "status"},
	)

	tokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_token_refresh_total",
			Help: "Total number of access token refresh attempts by outcome",
		},
		[]string{"result"},
	)

	tokenRefreshWaiters = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_token_refresh_waiters_total",
			Help: "Total number of callers attached to an already in-flight refresh",
		},
	)
)
