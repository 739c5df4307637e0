package echoapi

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/account"
	"github.com/moflotas/ipts-backend/core/ledger"
	"github.com/moflotas/ipts-backend/core/notification"
)

type accountApi struct {
	deps ServerDeps
}

func registerAccountAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := accountApi{deps: deps}

	ag := g.Group("/accounts", jwt)
	ag.GET("", api.query, adminMiddleware())
	ag.POST("", api.create, adminMiddleware())
	ag.GET("/groups", api.groups, adminMiddleware())

	dg := ag.Group("/:email")
	dg.GET("", api.retrieve)
	dg.PATCH("/telegram", api.setTelegram)
	dg.GET("/notification_settings", api.notificationSettings)
	dg.PATCH("/notification_settings", api.setNotificationSettings)
	dg.GET("/timeline", api.timeline)
	dg.GET("/statistics", api.statistics)
	dg.GET("/balance", api.balance)
	dg.GET("/transactions", api.transactions)
	dg.POST("/notify", api.notifyService, adminMiddleware())
}

type windowParams struct {
	StartDate string `query:"start_date" json:"start_date" validate:"omitempty,rfc3339tz"`
	EndDate   string `query:"end_date" json:"end_date" validate:"omitempty,rfc3339tz"`
}

// timelineWindow parses the optional start_date/end_date query params.
// RFC 3339 mandates an explicit offset, so naive datetimes are rejected.
func (api *accountApi) timelineWindow(ctx echo.Context) (core.TimeWindow, error) {
	var (
		params windowParams
		window core.TimeWindow
	)
	if err := ctx.Bind(&params); err != nil {
		return window, errors.Wrap(err, "binding window params")
	}
	if err := api.deps.Validate.Struct(params); err != nil {
		return window, err
	}
	if params.StartDate != "" {
		window.Start, _ = core.ParseTimeTZ(params.StartDate)
	}
	if params.EndDate != "" {
		window.End, _ = core.ParseTimeTZ(params.EndDate)
	}
	return window, nil
}

// Handlers

func (api *accountApi) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	var data account.NewAccount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAccount")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	acc, err := api.deps.AccountSvc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, acc)
}

func (api *accountApi) query(ctx echo.Context) error {
	var filter account.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()

	page, err := api.deps.AccountSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *accountApi) groups(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	groups, err := api.deps.AccountSvc.Groups(ctx.Request().Context(), actor)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *accountApi) retrieve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	acc, err := api.deps.AccountSvc.Get(ctx.Request().Context(), actor, ctx.Param("email"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *accountApi) setTelegram(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	var data account.UpdateTelegram
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTelegram")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	if err := api.deps.AccountSvc.SetTelegram(ctx.Request().Context(), actor, ctx.Param("email"), data); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *accountApi) notificationSettings(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	settings, err := api.deps.AccountSvc.NotificationSettings(ctx.Request().Context(), actor, ctx.Param("email"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, settings)
}

func (api *accountApi) setNotificationSettings(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	// ctx.Bind cannot set path params into a non-struct target; decode the
	// body directly.
	settings := make(map[notification.Group]notification.Channel)
	if err := json.NewDecoder(ctx.Request().Body).Decode(&settings); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := api.deps.AccountSvc.SetNotificationSettings(ctx.Request().Context(), actor, ctx.Param("email"), settings); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *accountApi) timeline(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	window, err := api.timelineWindow(ctx)
	if err != nil {
		return err
	}

	timeline, err := api.deps.AccountSvc.Timeline(ctx.Request().Context(), actor, ctx.Param("email"), window)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, timeline)
}

func (api *accountApi) statistics(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	window, err := api.timelineWindow(ctx)
	if err != nil {
		return err
	}

	stats, err := api.deps.AccountSvc.Statistics(ctx.Request().Context(), actor, ctx.Param("email"), window)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, stats)
}

// guardSelfOrAdmin mirrors the core's self-or-admin access rule for the
// ledger reads, which live outside the account service.
func guardSelfOrAdmin(actor core.Actor, email string) error {
	if actor.IsAdmin || actor.Email == email {
		return nil
	}
	return errHTTPForbidden
}

func (api *accountApi) balance(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	email := ctx.Param("email")
	if err := guardSelfOrAdmin(actor, email); err != nil {
		return err
	}

	balance, err := api.deps.LedgerSvc.Balance(ctx.Request().Context(), email)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"balance": balance})
}

func (api *accountApi) transactions(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	email := ctx.Param("email")
	if err := guardSelfOrAdmin(actor, email); err != nil {
		return err
	}

	transactions, err := api.deps.LedgerSvc.Query(ctx.Request().Context(), email)
	if err != nil {
		return err
	}
	if transactions == nil {
		transactions = []ledger.Transaction{}
	}
	return ctx.JSON(http.StatusOK, transactions)
}

func (api *accountApi) notifyService(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	var data account.ServiceMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ServiceMessage")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	if err := api.deps.AccountSvc.NotifyService(ctx.Request().Context(), actor, ctx.Param("email"), data); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
