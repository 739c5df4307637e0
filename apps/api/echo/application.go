package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/moflotas/ipts-backend/core/application"
)

type applicationApi struct {
	deps ServerDeps
}

func registerApplicationAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := applicationApi{deps: deps}

	ag := g.Group("/projects/:project_id/activities/:activity_id/applications", jwt)
	ag.POST("", api.apply)
	ag.DELETE("", api.withdraw)

	dg := ag.Group("/:application_id")
	dg.PATCH("/status", api.setStatus)
	dg.PATCH("/hours", api.setActualHours)
	dg.GET("/report", api.reportInfo)
	dg.POST("/report", api.createReport)
	dg.PATCH("/report", api.updateReport)
	dg.DELETE("/report", api.destroyReport)
	dg.POST("/feedback", api.submitFeedback)
}

type applicationPath struct {
	projectID     int
	activityID    int
	applicationID int
}

func bindApplicationPath(ctx echo.Context, withApplication bool) (applicationPath, error) {
	var path applicationPath
	var err error
	if path.projectID, err = intParam(ctx, "project_id"); err != nil {
		return path, err
	}
	if path.activityID, err = intParam(ctx, "activity_id"); err != nil {
		return path, err
	}
	if withApplication {
		if path.applicationID, err = intParam(ctx, "application_id"); err != nil {
			return path, err
		}
	}
	return path, nil
}

// Handlers

func (api *applicationApi) apply(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	path, err := bindApplicationPath(ctx, false)
	if err != nil {
		return err
	}

	var data application.NewApplication
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewApplication")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	app, err := api.deps.ApplicationSvc.Apply(ctx.Request().Context(), actor, path.projectID, path.activityID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, app)
}

func (api *applicationApi) withdraw(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	path, err := bindApplicationPath(ctx, false)
	if err != nil {
		return err
	}
	if err := api.deps.ApplicationSvc.Withdraw(ctx.Request().Context(), actor, path.projectID, path.activityID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

type statusRequest struct {
	Status application.Status `json:"status"`
}

func (api *applicationApi) setStatus(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	path, err := bindApplicationPath(ctx, true)
	if err != nil {
		return err
	}

	var data statusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to statusRequest")
	}

	app, err := api.deps.ApplicationSvc.SetStatus(ctx.Request().Context(), actor,
		path.projectID, path.activityID, path.applicationID, data.Status)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, app)
}

type hoursRequest struct {
	ActualHours int `json:"actual_hours"`
}

func (api *applicationApi) setActualHours(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	path, err := bindApplicationPath(ctx, true)
	if err != nil {
		return err
	}

	var data hoursRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to hoursRequest")
	}

	app, err := api.deps.ApplicationSvc.SetActualHours(ctx.Request().Context(), actor,
		path.projectID, path.activityID, path.applicationID, data.ActualHours)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, app)
}

// Reports

func (api *applicationApi) reportInfo(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	path, err := bindApplicationPath(ctx, true)
	if err != nil {
		return err
	}

	info, err := api.deps.ApplicationSvc.ReportInfo(ctx.Request().Context(), actor,
		path.projectID, path.activityID, path.applicationID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, info)
}

func (api *applicationApi) createReport(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	path, err := bindApplicationPath(ctx, true)
	if err != nil {
		return err
	}

	var data application.NewReport
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReport")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	report, err := api.deps.ApplicationSvc.CreateReport(ctx.Request().Context(), actor,
		path.projectID, path.activityID, path.applicationID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, report)
}

func (api *applicationApi) updateReport(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	path, err := bindApplicationPath(ctx, true)
	if err != nil {
		return err
	}

	var data application.NewReport
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReport")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	report, err := api.deps.ApplicationSvc.UpdateReport(ctx.Request().Context(), actor,
		path.projectID, path.activityID, path.applicationID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *applicationApi) destroyReport(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	path, err := bindApplicationPath(ctx, true)
	if err != nil {
		return err
	}
	if err := api.deps.ApplicationSvc.DeleteReport(ctx.Request().Context(), actor,
		path.projectID, path.activityID, path.applicationID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Feedback

func (api *applicationApi) submitFeedback(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	path, err := bindApplicationPath(ctx, true)
	if err != nil {
		return err
	}

	var data application.NewFeedback
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFeedback")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	fb, err := api.deps.ApplicationSvc.SubmitFeedback(ctx.Request().Context(), actor,
		path.projectID, path.activityID, path.applicationID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, fb)
}
