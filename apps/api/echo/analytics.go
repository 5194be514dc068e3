package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core/analytics"
	"github.com/liamAduDonkor/adesua-sub000/core/compliance"
	"github.com/liamAduDonkor/adesua-sub000/core/metric"
	"github.com/liamAduDonkor/adesua-sub000/core/report"
)

type analyticsApi struct {
	resolver report.ScopeResolver
	engine   *analytics.Engine
	scorer   *compliance.Scorer
	store    metric.Store
}

func registerAnalyticsAPI(g *echo.Group, deps *ServerDeps) {
	api := analyticsApi{resolver: deps.Resolver, engine: deps.Engine, scorer: deps.Scorer, store: deps.Store}

	ag := g.Group("/analytics")
	ag.GET("/summary", api.summary)
	ag.GET("/compliance", api.compliance)
}

// Handlers

func (api *analyticsApi) summary(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var req summaryRequest
	if err = req.Bind(ctx); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	filter, err := api.resolver.Resolve(rctx, p, req.Target)
	if err != nil {
		return errors.Wrap(err, "resolving scope")
	}
	res, err := api.engine.Summarize(rctx, filter, req.Query)
	if err != nil {
		return errors.Wrap(err, "summarizing metrics")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *analyticsApi) compliance(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var req complianceRequest
	if err = req.Bind(ctx); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	filter, err := api.resolver.Resolve(rctx, p, req.Target)
	if err != nil {
		return errors.Wrap(err, "resolving scope")
	}
	recs, err := api.scorer.Overview(rctx, api.store, filter, req.Query)
	if err != nil {
		return errors.Wrap(err, "scoring compliance")
	}
	return ctx.JSON(http.StatusOK, recs)
}
