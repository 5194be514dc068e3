package echoapi

import (
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core/report"
	rendersvc "github.com/liamAduDonkor/adesua-sub000/services/render"
)

type reportApi struct {
	svc       *report.Service
	artifacts ArtifactStore
}

func registerReportAPI(g *echo.Group, deps *ServerDeps) {
	api := reportApi{svc: deps.Reports, artifacts: deps.Artifacts}

	rg := g.Group("/reports")

	dg := rg.Group("/definitions")
	dg.POST("", api.createDefinition)
	dg.GET("", api.queryDefinitions)
	dg.GET("/:id", api.retrieveDefinition)
	dg.PUT("/:id", api.updateDefinition)
	dg.DELETE("/:id", api.destroyDefinition)
	dg.POST("/:id/submit", api.submit)
	dg.GET("/:id/instances", api.queryInstances)

	ig := rg.Group("/instances/:id")
	ig.GET("", api.retrieveInstance)
	ig.POST("/retry", api.retry)
	ig.POST("/cancel", api.cancel)
	ig.POST("/render", api.render)
	ig.GET("/artifact", api.downloadArtifact)
}

type (
	// InstanceView is what clients see of an instance: the result only once completed.
	InstanceView struct {
		ID           string            `json:"id"`
		DefinitionID string            `json:"definition_id"`
		Status       report.Status     `json:"status"`
		Attempts     int               `json:"attempts"`
		Result       *report.Payload   `json:"result,omitempty"`
		Failure      *report.Failure   `json:"failure,omitempty"`
		ArtifactRef  string            `json:"artifact_ref,omitempty"`
		Artifacts    []report.Artifact `json:"artifacts"`
		CreatedAt    time.Time         `json:"created_at"`
		QueuedAt     *time.Time        `json:"queued_at,omitempty"`
		StartedAt    *time.Time        `json:"started_at,omitempty"`
		CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	}

	SubmitResponse struct {
		InstanceID string        `json:"instance_id"`
		Status     report.Status `json:"status"`
	}

	RenderRequest struct {
		Format report.Format `json:"format"`
	}
)

func newInstanceView(inst report.Instance) InstanceView {
	v := InstanceView{
		ID:           inst.ID,
		DefinitionID: inst.DefinitionID,
		Status:       inst.Status,
		Attempts:     inst.Attempts,
		ArtifactRef:  inst.ArtifactRef,
		Artifacts:    inst.Artifacts,
		CreatedAt:    inst.CreatedAt,
		QueuedAt:     inst.QueuedAt,
		StartedAt:    inst.StartedAt,
		CompletedAt:  inst.CompletedAt,
	}
	if v.Artifacts == nil {
		v.Artifacts = []report.Artifact{}
	}
	switch inst.Status {
	case report.StatusCompleted:
		v.Result = inst.Payload
	case report.StatusFailed:
		v.Failure = inst.Failure
	}
	return v
}

// Handlers

func (api *reportApi) createDefinition(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data report.NewDefinition
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDefinition")
	}

	d, err := api.svc.CreateDefinition(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "creating definition")
	}
	return ctx.JSON(http.StatusCreated, d)
}

func (api *reportApi) queryDefinitions(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	defs, err := api.svc.Definitions(ctx.Request().Context(), p)
	if err != nil {
		return errors.Wrap(err, "querying definitions")
	}
	return ctx.JSON(http.StatusOK, defs)
}

func (api *reportApi) retrieveDefinition(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	d, err := api.svc.GetDefinition(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting definition")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *reportApi) updateDefinition(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data report.UpdateDefinition
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDefinition")
	}

	d, err := api.svc.UpdateDefinition(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating definition")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *reportApi) destroyDefinition(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteDefinition(ctx.Request().Context(), p, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting definition")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *reportApi) submit(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	d, err := api.svc.GetDefinition(rctx, p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting definition")
	}

	inst, err := api.svc.SubmitDefinition(rctx, d.ID)
	if err != nil {
		return errors.Wrap(err, "submitting definition")
	}
	return ctx.JSON(http.StatusAccepted, SubmitResponse{InstanceID: inst.ID, Status: inst.Status})
}

func (api *reportApi) queryInstances(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	statuses, err := bindStatuses(ctx)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	d, err := api.svc.GetDefinition(rctx, p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting definition")
	}

	insts, err := api.svc.Instances(rctx, d.ID, statuses...)
	if err != nil {
		return errors.Wrap(err, "querying instances")
	}
	views := make([]InstanceView, 0, len(insts))
	for _, inst := range insts {
		views = append(views, newInstanceView(inst))
	}
	return ctx.JSON(http.StatusOK, views)
}

func (api *reportApi) authorizedInstance(ctx echo.Context) (report.Instance, report.Definition, error) {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return report.Instance{}, report.Definition{}, err
	}
	inst, d, err := api.svc.AuthorizeInstance(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return report.Instance{}, report.Definition{}, errors.Wrap(err, "authorizing instance")
	}
	return inst, d, nil
}

func (api *reportApi) retrieveInstance(ctx echo.Context) error {
	inst, _, err := api.authorizedInstance(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newInstanceView(inst))
}

func (api *reportApi) retry(ctx echo.Context) error {
	inst, _, err := api.authorizedInstance(ctx)
	if err != nil {
		return err
	}
	if inst, err = api.svc.Retry(ctx.Request().Context(), inst.ID); err != nil {
		return errors.Wrap(err, "retrying instance")
	}
	return ctx.JSON(http.StatusAccepted, newInstanceView(inst))
}

func (api *reportApi) cancel(ctx echo.Context) error {
	inst, _, err := api.authorizedInstance(ctx)
	if err != nil {
		return err
	}
	if inst, err = api.svc.Cancel(ctx.Request().Context(), inst.ID); err != nil {
		return errors.Wrap(err, "cancelling instance")
	}
	return ctx.JSON(http.StatusOK, newInstanceView(inst))
}

func (api *reportApi) render(ctx echo.Context) error {
	inst, _, err := api.authorizedInstance(ctx)
	if err != nil {
		return err
	}
	var data RenderRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RenderRequest")
	}
	if inst, err = api.svc.Rerender(ctx.Request().Context(), inst.ID, data.Format); err != nil {
		return errors.Wrap(err, "rendering instance")
	}
	return ctx.JSON(http.StatusOK, newInstanceView(inst))
}

// downloadArtifact streams the latest artifact, or the latest one of ?format=.
func (api *reportApi) downloadArtifact(ctx echo.Context) error {
	inst, _, err := api.authorizedInstance(ctx)
	if err != nil {
		return err
	}
	format := report.Format(ctx.QueryParam("format"))

	var found *report.Artifact
	for i := len(inst.Artifacts) - 1; i >= 0; i-- {
		if format == "" || inst.Artifacts[i].Format == format {
			found = &inst.Artifacts[i]
			break
		}
	}
	if found == nil {
		return errHttpNotFound
	}

	rc, err := api.artifacts.Open(found.Ref)
	if err != nil {
		return errors.Wrap(err, "opening artifact")
	}
	defer rc.Close()

	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", path.Base(found.Ref)))
	return ctx.Stream(http.StatusOK, rendersvc.ContentType(found.Format), rc)
}
