package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type notificationApi struct {
	deps ServerDeps
}

func registerNotificationAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := notificationApi{deps: deps}

	ng := g.Group("/notifications", jwt)
	ng.GET("", api.query)
	ng.POST("/:id/read", api.markRead)
}

func (api *notificationApi) query(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	unreadOnly := ctx.QueryParam("unread") == "true"

	notifications, err := api.deps.NotificationSvc.Query(ctx.Request().Context(), actor.Email, unreadOnly)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, notifications)
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	if err := api.deps.NotificationSvc.MarkRead(ctx.Request().Context(), id, actor.Email); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
