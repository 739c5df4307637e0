package dummydb

import (
	"context"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/file"
)

type fileRepository struct {
	db *DB
}

var _ file.Repository = (*fileRepository)(nil) // interface compliance check

func NewFileRepository(db *DB) file.Repository {
	return &fileRepository{db: db}
}

func (repo *fileRepository) CreateFile(ctx context.Context, f file.StaticFile) (file.StaticFile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	f.ID = repo.db.nextPK()
	repo.db.files[f.ID] = &f
	return f, nil
}

func (repo *fileRepository) GetFile(ctx context.Context, id int) (file.StaticFile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if f, ok := repo.db.files[id]; ok {
		return *f, nil
	}
	return file.StaticFile{}, core.NotFoundError(file.ErrNotFound)
}

func (repo *fileRepository) DeleteFile(ctx context.Context, id int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.files[id]; !ok {
		return core.NotFoundError(file.ErrNotFound)
	}
	delete(repo.db.files, id)
	return nil
}
