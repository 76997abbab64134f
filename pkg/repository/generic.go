package repository

import (
	"context"
	"fmt"

	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/session"
)

// GenericRepository runs a Mapper's statements in one session. It is not
// safe for concurrent use, like the session itself.
type GenericRepository[T any] struct {
	mapper  *Mapper[T]
	session *session.Session
}

// New binds the statements of mapper to s
func New[T any](mapper *Mapper[T], s *session.Session) Repository[T] {
	return &GenericRepository[T]{mapper: mapper, session: s}
}

// On is New with the mapper as receiver
func (m *Mapper[T]) On(s *session.Session) Repository[T] {
	return New(m, s)
}

// FindByID returns nil without an error when no row has the id
func (r *GenericRepository[T]) FindByID(ctx context.Context, id any) (*T, error) {
	if id == nil {
		return nil, fmt.Errorf("id cannot be nil")
	}
	return session.SelectOne[*T](ctx, r.session, r.mapper.StatementID(StmtFindByID), id)
}

// FindByIDs returns the rows among ids ordered by primary key. Unknown ids
// are skipped.
func (r *GenericRepository[T]) FindByIDs(ctx context.Context, ids []any) ([]*T, error) {
	if len(ids) == 0 {
		return []*T{}, nil
	}
	return session.SelectList[*T](ctx, r.session, r.mapper.StatementID(StmtFindByIDs), ids)
}

func (r *GenericRepository[T]) FindAll(ctx context.Context) ([]*T, error) {
	return session.SelectList[*T](ctx, r.session, r.mapper.StatementID(StmtFindAll), nil)
}

// FindPage skips offset rows and returns at most limit
func (r *GenericRepository[T]) FindPage(ctx context.Context, offset, limit int) ([]*T, error) {
	if offset < 0 || limit <= 0 {
		return nil, fmt.Errorf("invalid page offset %d limit %d", offset, limit)
	}
	list, err := r.session.SelectPage(ctx, r.mapper.StatementID(StmtFindAll), nil, mapping.NewRowBounds(offset, limit))
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(list))
	for _, obj := range list {
		v, ok := obj.(*T)
		if !ok {
			return nil, mapping.Mappingf(r.mapper.StatementID(StmtFindAll), "result of type %T is not %T", obj, v)
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *GenericRepository[T]) Count(ctx context.Context) (int64, error) {
	return session.SelectOne[int64](ctx, r.session, r.mapper.StatementID(StmtCount), nil)
}

func (r *GenericRepository[T]) Exists(ctx context.Context, id any) (bool, error) {
	entity, err := r.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	return entity != nil, nil
}

// Create inserts entity. A generated primary key is written back to it.
func (r *GenericRepository[T]) Create(ctx context.Context, entity *T) error {
	if entity == nil {
		return fmt.Errorf("entity cannot be nil")
	}
	_, err := r.session.Insert(ctx, r.mapper.StatementID(StmtInsert), entity)
	return err
}

// Update writes every updatable column of entity and returns the number of
// rows matched by its primary key
func (r *GenericRepository[T]) Update(ctx context.Context, entity *T) (int64, error) {
	if entity == nil {
		return 0, fmt.Errorf("entity cannot be nil")
	}
	return r.session.Update(ctx, r.mapper.StatementID(StmtUpdate), entity)
}

func (r *GenericRepository[T]) Delete(ctx context.Context, id any) (int64, error) {
	if id == nil {
		return 0, fmt.Errorf("id cannot be nil")
	}
	return r.session.Delete(ctx, r.mapper.StatementID(StmtDelete), id)
}

// CreateBatch inserts entities in order. In a batch session the inserts are
// sent together and a failure reports how many statements succeeded.
func (r *GenericRepository[T]) CreateBatch(ctx context.Context, entities []*T) error {
	for i, entity := range entities {
		if entity == nil {
			return fmt.Errorf("entity %d cannot be nil", i)
		}
		if _, err := r.session.Insert(ctx, r.mapper.StatementID(StmtInsert), entity); err != nil {
			return err
		}
	}
	_, err := r.session.FlushStatements(ctx)
	return err
}
