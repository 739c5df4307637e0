package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/moflotas/ipts-backend/core/store"
)

type storeApi struct {
	deps ServerDeps
}

func registerStoreAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := storeApi{deps: deps}

	pg := g.Group("/products")
	pg.GET("", api.queryProducts)
	pg.GET("/:id", api.retrieveProduct)
	pg.POST("", api.createProduct, jwt, adminMiddleware())
	pg.DELETE("/:id", api.destroyProduct, jwt, adminMiddleware())

	vg := g.Group("/varieties/:id", jwt)
	vg.POST("/purchase", api.purchase)
	vg.POST("/restock", api.restock, adminMiddleware())

	sg := g.Group("/stock_changes/:id", jwt, adminMiddleware())
	sg.PATCH("/status", api.setStockChangeStatus)

	cg := g.Group("/colors")
	cg.GET("", api.queryColors)
	cg.POST("", api.createColor, jwt, adminMiddleware())
}

// Handlers

func (api *storeApi) createProduct(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	var data store.NewProduct
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProduct")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	p, err := api.deps.StoreSvc.CreateProduct(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *storeApi) queryProducts(ctx echo.Context) error {
	var filter store.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()

	products, err := api.deps.StoreSvc.QueryProducts(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, products)
}

func (api *storeApi) retrieveProduct(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	p, err := api.deps.StoreSvc.GetProduct(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *storeApi) destroyProduct(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	if err := api.deps.StoreSvc.DeleteProduct(ctx.Request().Context(), actor, id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *storeApi) purchase(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	varietyID, err := intParam(ctx, "id")
	if err != nil {
		return err
	}

	var data store.NewPurchase
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPurchase")
	}
	data.VarietyID = varietyID
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	sc, err := api.deps.StoreSvc.Purchase(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sc)
}

type restockRequest struct {
	Amount int `json:"amount"`
}

func (api *storeApi) restock(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	varietyID, err := intParam(ctx, "id")
	if err != nil {
		return err
	}

	var data restockRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to restockRequest")
	}

	sc, err := api.deps.StoreSvc.Restock(ctx.Request().Context(), actor, varietyID, data.Amount)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sc)
}

type stockChangeStatusRequest struct {
	Status store.StockChangeStatus `json:"status"`
}

func (api *storeApi) setStockChangeStatus(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}

	var data stockChangeStatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to stockChangeStatusRequest")
	}

	if err := api.deps.StoreSvc.SetStockChangeStatus(ctx.Request().Context(), actor, id, data.Status); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *storeApi) queryColors(ctx echo.Context) error {
	colors, err := api.deps.StoreSvc.QueryColors(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, colors)
}

func (api *storeApi) createColor(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	var data store.NewColor
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewColor")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	c, err := api.deps.StoreSvc.CreateColor(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, c)
}
