package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"
)

// metricsMiddleware reports every request to obs, labelled by its route pattern.
// Errors are handled here so that the recorded status is the one sent.
func metricsMiddleware(obs RequestObserver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			if err := next(ctx); err != nil {
				ctx.Error(err)
			}
			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			obs.ObserveRequest(route, ctx.Request().Method, ctx.Response().Status, time.Since(start))
			return nil
		}
	}
}
