package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	appErr "github.com/cloudconsole/engine/pkg/errors"
)

// uniqueViolation is the PostgreSQL SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

// BaseRepository defines the operations shared by every catalog table.
type BaseRepository[T any] interface {
	Create(ctx context.Context, obj *T) error
	// FindOne loads the first row matching query into dest.
	FindOne(ctx context.Context, dest *T, query string, args ...any) error
	// DeleteWhere removes every row matching query. No match is NotFound.
	DeleteWhere(ctx context.Context, query string, args ...any) error
}

type baseRepository[T any] struct {
	db *gorm.DB
	// entity names the table in error messages.
	entity string
}

func NewBaseRepository[T any](db *gorm.DB, entity string) BaseRepository[T] {
	return &baseRepository[T]{db: db, entity: entity}
}

func (r *baseRepository[T]) Create(ctx context.Context, obj *T) error {
	if err := r.db.WithContext(ctx).Create(obj).Error; err != nil {
		if isUniqueViolation(err) {
			return appErr.Wrap(err, appErr.CodeConflict, r.entity+" already exists")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "create "+r.entity+" failed")
	}
	return nil
}

func (r *baseRepository[T]) FindOne(ctx context.Context, dest *T, query string, args ...any) error {
	if err := r.db.WithContext(ctx).Where(query, args...).First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.New(appErr.CodeNotFound, r.entity+" not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get "+r.entity+" failed")
	}
	return nil
}

func (r *baseRepository[T]) DeleteWhere(ctx context.Context, query string, args ...any) error {
	var t T
	res := r.db.WithContext(ctx).Where(query, args...).Delete(&t)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "delete "+r.entity+" failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, r.entity+" not found")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
