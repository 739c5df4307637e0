package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/file"
)

type fileRepository struct {
	db *sqlx.DB
}

var _ file.Repository = (*fileRepository)(nil) // interface compliance check

func NewFileRepository(db *sqlx.DB) file.Repository {
	return &fileRepository{db: db}
}

func (repo *fileRepository) CreateFile(ctx context.Context, f file.StaticFile) (file.StaticFile, error) {
	err := repo.db.QueryRowContext(ctx, `
		INSERT INTO static_files (mimetype, namespace, key, owner_email)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, f.Mimetype, f.Namespace, f.Key, f.OwnerEmail).Scan(&f.ID)
	if err != nil {
		return file.StaticFile{}, err
	}
	return f, nil
}

func (repo *fileRepository) GetFile(ctx context.Context, id int) (file.StaticFile, error) {
	var f file.StaticFile
	err := repo.db.QueryRowContext(ctx, `
		SELECT id, mimetype, namespace, key, owner_email
		FROM static_files
		WHERE id = $1
	`, id).Scan(&f.ID, &f.Mimetype, &f.Namespace, &f.Key, &f.OwnerEmail)
	if err != nil {
		return file.StaticFile{}, translate(err, file.ErrNotFound)
	}
	return f, nil
}

func (repo *fileRepository) DeleteFile(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM static_files WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return core.NotFoundError(file.ErrNotFound)
	}
	return nil
}
