// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package service

import (
	"context"
	"net/http"

	"github.com/alexliesenfeld/health"
)

// HealthHandler serves the result of checkFunc in the health library's JSON
// format. Results are not cached so the endpoint follows the block tracker.
func HealthHandler(checkFunc func(context.Context) error) http.Handler {
	checker := health.NewChecker(
		health.WithDisabledCache(),
		health.WithCheck(health.Check{
			Name:  "paychan-monitor-health",
			Check: checkFunc,
		}),
	)
	return health.NewHandler(checker)
}
