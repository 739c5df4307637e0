package file

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/moflotas/ipts-backend/core"
)

var (
	// errors
	ErrNotFound = errors.New("file not found")

	errBadMimetype = errors.New("this file type is not allowed")
	errNotOwner    = errors.New("files can only be deleted by their owner")
)

type (
	// Store holds the blob bytes, keyed by namespace and key. Implementations
	// live outside the core (disk today).
	Store interface {
		Save(ctx context.Context, namespace, key string, data io.Reader) error
		Open(ctx context.Context, namespace, key string) (io.ReadCloser, error)
		Delete(ctx context.Context, namespace, key string) error
	}

	Repository interface {
		CreateFile(ctx context.Context, f StaticFile) (StaticFile, error)
		GetFile(ctx context.Context, id int) (StaticFile, error)
		DeleteFile(ctx context.Context, id int) error
	}

	Service interface {
		// Upload persists the metadata row, then the blob. A blob failure
		// rolls the row back and surfaces as a dependency error.
		Upload(ctx context.Context, actor core.Actor, namespace, mimetype string, data io.Reader) (StaticFile, error)
		Open(ctx context.Context, id int) (StaticFile, io.ReadCloser, error)
		Delete(ctx context.Context, actor core.Actor, id int) error
	}

	service struct {
		repo   Repository
		store  Store
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, store Store, logger core.Logger) Service {
	return &service{
		repo:   repo,
		store:  store,
		logger: logger,
	}
}

func (svc *service) Upload(ctx context.Context, actor core.Actor, namespace, mimetype string, data io.Reader) (StaticFile, error) {
	if !AllowedMimetypes[mimetype] {
		return StaticFile{}, core.NewValidationError(errBadMimetype, core.FieldError{Field: "file", Error: errBadMimetype.Error()})
	}
	f := StaticFile{
		Mimetype:   mimetype,
		Namespace:  namespace,
		Key:        uuid.NewString(),
		OwnerEmail: actor.Email,
	}
	f, err := svc.repo.CreateFile(ctx, f)
	if err != nil {
		return StaticFile{}, errors.Wrap(err, "creating file record")
	}
	if err = svc.store.Save(ctx, f.Namespace, f.Key, data); err != nil {
		if delErr := svc.repo.DeleteFile(ctx, f.ID); delErr != nil {
			svc.logger.Error("rolling back file record", delErr)
		}
		return StaticFile{}, core.DependencyError(errors.Wrap(err, "storing blob"))
	}
	return f, nil
}

func (svc *service) Open(ctx context.Context, id int) (StaticFile, io.ReadCloser, error) {
	f, err := svc.repo.GetFile(ctx, id)
	if err != nil {
		return StaticFile{}, nil, err
	}
	blob, err := svc.store.Open(ctx, f.Namespace, f.Key)
	if err != nil {
		return StaticFile{}, nil, core.NotFoundError(ErrNotFound)
	}
	return f, blob, nil
}

func (svc *service) Delete(ctx context.Context, actor core.Actor, id int) error {
	f, err := svc.repo.GetFile(ctx, id)
	if err != nil {
		return err
	}
	if f.OwnerEmail != actor.Email && !actor.IsAdmin {
		return core.ForbiddenError(errNotOwner)
	}
	if err = svc.store.Delete(ctx, f.Namespace, f.Key); err != nil {
		svc.logger.Error("deleting blob", err)
	}
	return svc.repo.DeleteFile(ctx, id)
}
