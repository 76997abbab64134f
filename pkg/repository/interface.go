package repository

import (
	"context"
)

// Repository runs the generated CRUD statements of one row type in a session
type Repository[T any] interface {
	// Queries go through the session cache and the namespace cache
	FindByID(ctx context.Context, id any) (*T, error)
	FindByIDs(ctx context.Context, ids []any) ([]*T, error)
	FindAll(ctx context.Context) ([]*T, error)
	FindPage(ctx context.Context, offset, limit int) ([]*T, error)
	Count(ctx context.Context) (int64, error)
	Exists(ctx context.Context, id any) (bool, error)

	// Commands flush the namespace cache on commit
	Create(ctx context.Context, entity *T) error
	Update(ctx context.Context, entity *T) (int64, error)
	Delete(ctx context.Context, id any) (int64, error)

	// CreateBatch inserts every entity and flushes batched statements
	CreateBatch(ctx context.Context, entities []*T) error
}
