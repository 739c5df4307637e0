package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/moflotas/ipts-backend/core/project"
)

type projectApi struct {
	deps ServerDeps
}

func registerProjectAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := projectApi{deps: deps}

	pg := g.Group("/projects")
	pg.GET("", api.query)

	ag := pg.Group("", jwt)
	ag.POST("", api.create)
	ag.GET("/drafts", api.queryDrafts)

	dg := pg.Group("/:project_id")
	dg.GET("", api.retrieve)
	dg.GET("/activities", api.queryActivities)

	adg := dg.Group("", jwt)
	adg.PATCH("", api.update)
	adg.DELETE("", api.destroy)
	adg.POST("/publish", api.publish)
	adg.POST("/finalize", api.startFinalizing)
	adg.POST("/request_review", api.requestReview)
	adg.POST("/review", api.review, adminMiddleware())
	adg.POST("/activities", api.createActivity)
	adg.PATCH("/activities/:activity_id", api.updateActivity)
	adg.DELETE("/activities/:activity_id", api.destroyActivity)
	adg.POST("/activities/:activity_id/publish", api.publishActivity)

	cg := g.Group("/competences")
	cg.GET("", api.queryCompetences)
	acg := cg.Group("", jwt, adminMiddleware())
	acg.POST("", api.createCompetence)
	acg.PATCH("/:id", api.updateCompetence)
	acg.DELETE("/:id", api.destroyCompetence)
}

// intParam parses a positive integer path parameter; anything else is a 404.
func intParam(ctx echo.Context, name string) (int, error) {
	val, err := strconv.Atoi(ctx.Param(name))
	if err != nil || val < 1 {
		return 0, echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return val, nil
}

// Handlers

func (api *projectApi) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	var data project.NewProject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProject")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	proj, err := api.deps.ProjectSvc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, proj)
}

func (api *projectApi) query(ctx echo.Context) error {
	var filter project.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()

	projects, err := api.deps.ProjectSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, projects)
}

func (api *projectApi) queryDrafts(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	projects, err := api.deps.ProjectSvc.QueryDrafts(ctx.Request().Context(), actor)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, projects)
}

func (api *projectApi) retrieve(ctx echo.Context) error {
	id, err := intParam(ctx, "project_id")
	if err != nil {
		return err
	}
	proj, err := api.deps.ProjectSvc.Get(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, proj)
}

func (api *projectApi) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := intParam(ctx, "project_id")
	if err != nil {
		return err
	}

	var data project.UpdateProject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProject")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	proj, err := api.deps.ProjectSvc.Update(ctx.Request().Context(), actor, id, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, proj)
}

func (api *projectApi) publish(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := intParam(ctx, "project_id")
	if err != nil {
		return err
	}
	if err := api.deps.ProjectSvc.Publish(ctx.Request().Context(), actor, id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *projectApi) startFinalizing(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := intParam(ctx, "project_id")
	if err != nil {
		return err
	}
	if err := api.deps.ProjectSvc.StartFinalizing(ctx.Request().Context(), actor, id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *projectApi) requestReview(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := intParam(ctx, "project_id")
	if err != nil {
		return err
	}
	proj, err := api.deps.ProjectSvc.RequestReview(ctx.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, proj)
}

type reviewRequest struct {
	Decision      string      `json:"decision"`
	AdminFeedback null.String `json:"admin_feedback"`
}

func (api *projectApi) review(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := intParam(ctx, "project_id")
	if err != nil {
		return err
	}

	var data reviewRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to reviewRequest")
	}

	if err := api.deps.ProjectSvc.Review(ctx.Request().Context(), actor, id, data.Decision, data.AdminFeedback); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *projectApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := intParam(ctx, "project_id")
	if err != nil {
		return err
	}
	if err := api.deps.ProjectSvc.Delete(ctx.Request().Context(), actor, id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Activities

func (api *projectApi) queryActivities(ctx echo.Context) error {
	id, err := intParam(ctx, "project_id")
	if err != nil {
		return err
	}
	activities, err := api.deps.ProjectSvc.QueryActivities(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, activities)
}

func (api *projectApi) createActivity(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := intParam(ctx, "project_id")
	if err != nil {
		return err
	}

	var data project.NewActivity
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewActivity")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	act, err := api.deps.ProjectSvc.CreateActivity(ctx.Request().Context(), actor, id, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, act)
}

func (api *projectApi) updateActivity(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	projectID, err := intParam(ctx, "project_id")
	if err != nil {
		return err
	}
	activityID, err := intParam(ctx, "activity_id")
	if err != nil {
		return err
	}

	var data project.UpdateActivity
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateActivity")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	act, err := api.deps.ProjectSvc.UpdateActivity(ctx.Request().Context(), actor, projectID, activityID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, act)
}

func (api *projectApi) publishActivity(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	projectID, err := intParam(ctx, "project_id")
	if err != nil {
		return err
	}
	activityID, err := intParam(ctx, "activity_id")
	if err != nil {
		return err
	}
	if err := api.deps.ProjectSvc.PublishActivity(ctx.Request().Context(), actor, projectID, activityID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *projectApi) destroyActivity(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	projectID, err := intParam(ctx, "project_id")
	if err != nil {
		return err
	}
	activityID, err := intParam(ctx, "activity_id")
	if err != nil {
		return err
	}
	if err := api.deps.ProjectSvc.DeleteActivity(ctx.Request().Context(), actor, projectID, activityID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Competences

func (api *projectApi) queryCompetences(ctx echo.Context) error {
	competences, err := api.deps.ProjectSvc.QueryCompetences(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, competences)
}

func (api *projectApi) createCompetence(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	var data project.NewCompetence
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCompetence")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	c, err := api.deps.ProjectSvc.CreateCompetence(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *projectApi) updateCompetence(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}

	var data project.NewCompetence
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCompetence")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	c, err := api.deps.ProjectSvc.UpdateCompetence(ctx.Request().Context(), actor, id, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *projectApi) destroyCompetence(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	if err := api.deps.ProjectSvc.DeleteCompetence(ctx.Request().Context(), actor, id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
