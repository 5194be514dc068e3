package report

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/analytics"
	"github.com/liamAduDonkor/adesua-sub000/core/compliance"
	"github.com/liamAduDonkor/adesua-sub000/core/metric"
	"github.com/liamAduDonkor/adesua-sub000/core/scope"
)

const defaultGenerationTimeout = 2 * time.Minute

type (
	GeneratorDeps struct {
		Service *Service
		Store   metric.Store
		Engine  *analytics.Engine
		Scorer  *compliance.Scorer // optional: no compliance section without it
		Logger  core.Logger
		Conf    *core.Config
	}

	// Generator turns a claimed instance into a completed or failed one.
	Generator struct {
		svc     *Service
		store   metric.Store
		engine  *analytics.Engine
		scorer  *compliance.Scorer
		logger  core.Logger
		timeout time.Duration
	}

	// generationError tags a generation error with the reason it is recorded under.
	generationError struct {
		reason FailureReason
		err    error
	}

	outcome struct {
		payload Payload
		ref     string
		err     error
	}
)

func (e *generationError) Error() string { return e.err.Error() }
func (e *generationError) Unwrap() error { return e.err }
func (e *generationError) Cause() error  { return e.err }

func failWith(reason FailureReason, err error) error {
	return &generationError{reason: reason, err: err}
}

func NewGenerator(deps GeneratorDeps) *Generator {
	g := &Generator{
		svc:     deps.Service,
		store:   deps.Store,
		engine:  deps.Engine,
		scorer:  deps.Scorer,
		logger:  deps.Logger,
		timeout: defaultGenerationTimeout,
	}
	if deps.Conf != nil && deps.Conf.Reports.GenerationTimeout > 0 {
		g.timeout = deps.Conf.Reports.GenerationTimeout
	}
	return g
}

// Generate builds the payload and artifact of a generating instance under the generation timeout.
// Once claimed, an instance always ends completed or failed: cancelling ctx (a worker shutting
// down) does not interrupt it, and storage errors while recording the outcome fail it with
// ReasonStorage. The returned error is only set when the instance itself could not be updated.
func (g *Generator) Generate(ctx context.Context, inst Instance) (Instance, error) {
	if inst.Status != StatusGenerating {
		return Instance{}, invalidTransition(inst.Status, StatusCompleted)
	}
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	d, err := g.svc.repo.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return g.fail(ctx, inst, d, start, failWith(ReasonStorage, err))
	}

	gctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: failWith(ReasonInternal, errors.Errorf("panic: %v", r))}
			}
		}()
		payload, ref, err := g.build(gctx, inst, d)
		done <- outcome{payload: payload, ref: ref, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-gctx.Done():
		out.err = gctx.Err()
	}
	if out.err != nil {
		return g.fail(ctx, inst, d, start, out.err)
	}

	completed, err := g.svc.Complete(ctx, inst.ID, out.payload, out.ref)
	switch {
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAlreadyClaimed):
		// someone else moved it on, nothing left to record
		return Instance{}, err
	case err != nil:
		return g.fail(ctx, inst, d, start, failWith(ReasonStorage, errors.Wrap(err, "completing instance")))
	}
	g.svc.observer.GenerationFinished(d.Type, StatusCompleted, "", time.Since(start))
	g.logger.Info("report generated", core.Fields{"instance_id": inst.ID, "type": d.Type, "took": time.Since(start).String()})
	return completed, nil
}

func (g *Generator) fail(ctx context.Context, inst Instance, d Definition, start time.Time, cause error) (Instance, error) {
	reason := classify(cause)
	failed, err := g.svc.Fail(ctx, inst.ID, reason, cause.Error())
	if err != nil {
		return Instance{}, errors.Wrapf(err, "recording failure %q", cause)
	}
	g.svc.observer.GenerationFinished(d.Type, StatusFailed, reason, time.Since(start))
	return failed, nil
}

func (g *Generator) build(ctx context.Context, inst Instance, d Definition) (Payload, string, error) {
	tmpl, ok := d.Type.Template()
	if !ok {
		return Payload{}, "", failWith(ReasonInvalidQuery, errors.Wrapf(analytics.ErrInvalidQuery, "unknown report type %q", d.Type))
	}

	// the owner's assignments may have changed since submission
	filter, err := g.svc.resolver.Resolve(ctx, d.Owner, d.Filters.Target())
	if err != nil {
		if isScopeErr(err) {
			return Payload{}, "", failWith(ReasonScopeDenied, err)
		}
		return Payload{}, "", failWith(ReasonStorage, err)
	}

	res, err := g.engine.Summarize(ctx, filter, tmpl.Query(d))
	if err != nil {
		return Payload{}, "", queryErr(err)
	}
	payload := Payload{Analytics: res}

	if g.scorer != nil && tmpl.Compliance != "" {
		recs, err := g.scorer.Overview(ctx, g.store, filter, compliance.OverviewQuery{
			Category: tmpl.Compliance,
			Range:    d.Filters.Range(),
		})
		if err != nil {
			return Payload{}, "", queryErr(err)
		}
		payload.Compliance = recs
	}

	if err := ctx.Err(); err != nil {
		return Payload{}, "", err
	}
	ref, err := g.svc.renderer.Render(ctx, RenderRequest{
		InstanceID:   inst.ID,
		DefinitionID: d.ID,
		Type:         d.Type,
		Title:        d.Title,
		Format:       d.OutputFormat,
		Payload:      payload,
	})
	if err != nil {
		return Payload{}, "", failWith(ReasonRender, err)
	}
	return payload, ref, nil
}

func queryErr(err error) error {
	switch {
	case errors.Is(err, analytics.ErrInvalidQuery), errors.Is(err, compliance.ErrUnknownCategory):
		return failWith(ReasonInvalidQuery, err)
	case errors.Is(err, scope.ErrScopeDenied):
		return failWith(ReasonScopeDenied, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	}
	return failWith(ReasonStorage, err)
}

// classify picks the reason a generation error is recorded under.
func classify(err error) FailureReason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var gErr *generationError
	if errors.As(err, &gErr) {
		return gErr.reason
	}
	if errors.Is(err, ErrRender) {
		return ReasonRender
	}
	return ReasonInternal
}
