package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type fileApi struct {
	deps ServerDeps
}

func registerFileAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := fileApi{deps: deps}

	fg := g.Group("/files")
	fg.GET("/:id", api.retrieve)
	fg.POST("/:namespace", api.upload, jwt)
	fg.DELETE("/:id", api.destroy, jwt)
}

func (api *fileApi) upload(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return errors.Wrap(err, "reading multipart file")
	}
	src, err := fileHeader.Open()
	if err != nil {
		return errors.Wrap(err, "opening multipart file")
	}
	defer src.Close()

	mimetype := fileHeader.Header.Get(echo.HeaderContentType)
	f, err := api.deps.FileSvc.Upload(ctx.Request().Context(), actor, ctx.Param("namespace"), mimetype, src)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, f)
}

func (api *fileApi) retrieve(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}

	f, blob, err := api.deps.FileSvc.Open(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	defer blob.Close()

	return ctx.Stream(http.StatusOK, f.Mimetype, blob)
}

func (api *fileApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	if err := api.deps.FileSvc.Delete(ctx.Request().Context(), actor, id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
