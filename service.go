/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package unitofwork

import (
	"context"

	"github.com/liuyl1992/UnitOfWork/database"
	"github.com/liuyl1992/UnitOfWork/repository"
	"github.com/liuyl1992/UnitOfWork/types"
	"github.com/uptrace/bun"
)

// Service is a per-entity facade for callers that do not need to batch
// changes: every call runs in its own unit of work and writes are saved
// before the call returns.
type Service[T any] interface {
	// Get returns the entity with the given key values, or nil.
	Get(ctx context.Context, keys ...interface{}) (*T, error)

	// First returns the first entity matching opts, or nil.
	First(ctx context.Context, opts *types.QueryOptions) (*T, error)

	// All returns every entity matching opts.
	All(ctx context.Context, opts *types.QueryOptions) ([]*T, error)

	// Page returns one page of the entities matching opts.
	Page(ctx context.Context, opts *types.QueryOptions) (*types.PagedList[T], error)

	Count(ctx context.Context, filter *types.QueryFilter) (int, error)

	// Query executes a raw query and maps the results to entities.
	Query(ctx context.Context, query string, args ...interface{}) ([]*T, error)

	// Save inserts the entities and returns the affected row count.
	Save(ctx context.Context, models ...*T) (int64, error)

	// SaveOrUpdate upserts entities on conflictKeys, updating fields.
	SaveOrUpdate(ctx context.Context, fields []string, conflictKeys []string, models ...*T) error

	Update(ctx context.Context, models ...*T) (int64, error)

	Delete(ctx context.Context, models ...*T) (int64, error)

	DeleteByKey(ctx context.Context, keys ...interface{}) (int64, error)

	// SelectBuilder returns a Bun select query builder for the entity.
	SelectBuilder() *bun.SelectQuery
}

type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	db          *bun.DB
	autoHistory bool
	contextOpts []database.ContextOption
}

// WithServiceDB binds the service to db instead of the global connection.
func WithServiceDB(db *bun.DB) ServiceOption {
	return func(o *serviceOptions) { o.db = db }
}

// WithAutoHistory records an AutoHistory row for every write.
func WithAutoHistory() ServiceOption {
	return func(o *serviceOptions) { o.autoHistory = true }
}

func WithServiceContextOptions(opts ...database.ContextOption) ServiceOption {
	return func(o *serviceOptions) { o.contextOpts = append(o.contextOpts, opts...) }
}

type baseServiceImpl[T any] struct {
	opts serviceOptions
}

// NewService returns a Service over the global database connection unless
// WithServiceDB is given. The connection is resolved on every call.
func NewService[T any](opts ...ServiceOption) Service[T] {
	s := &baseServiceImpl[T]{}
	for _, opt := range opts {
		opt(&s.opts)
	}
	return s
}

func (s *baseServiceImpl[T]) factory() (*Factory, error) {
	db := s.opts.db
	if db == nil {
		db = database.GetDB()
	}
	return NewFactory(db, s.opts.contextOpts...)
}

func (s *baseServiceImpl[T]) read(ctx context.Context, fn func(repo repository.Repository[T]) error) error {
	f, err := s.factory()
	if err != nil {
		return err
	}
	_, err = f.Do(ctx, false, func(ctx context.Context, uow *UnitOfWork) error {
		return fn(GetRepository[T](uow))
	})
	return err
}

func (s *baseServiceImpl[T]) write(ctx context.Context, fn func(ctx context.Context, repo repository.Repository[T]) error) (int64, error) {
	f, err := s.factory()
	if err != nil {
		return 0, err
	}
	return f.Do(ctx, s.opts.autoHistory, func(ctx context.Context, uow *UnitOfWork) error {
		return fn(ctx, GetRepository[T](uow))
	})
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, keys ...interface{}) (result *T, err error) {
	err = s.read(ctx, func(repo repository.Repository[T]) error {
		result, err = repo.Find(ctx, keys...)
		return err
	})
	return result, err
}

func (s *baseServiceImpl[T]) First(ctx context.Context, opts *types.QueryOptions) (result *T, err error) {
	err = s.read(ctx, func(repo repository.Repository[T]) error {
		result, err = repo.GetFirstOrDefault(ctx, opts)
		return err
	})
	return result, err
}

func (s *baseServiceImpl[T]) All(ctx context.Context, opts *types.QueryOptions) (result []*T, err error) {
	err = s.read(ctx, func(repo repository.Repository[T]) error {
		result, err = repo.GetAll(ctx, opts)
		return err
	})
	return result, err
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, opts *types.QueryOptions) (result *types.PagedList[T], err error) {
	err = s.read(ctx, func(repo repository.Repository[T]) error {
		result, err = repo.GetPagedList(ctx, opts)
		return err
	})
	return result, err
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, filter *types.QueryFilter) (result int, err error) {
	err = s.read(ctx, func(repo repository.Repository[T]) error {
		result, err = repo.Count(ctx, filter)
		return err
	})
	return result, err
}

func (s *baseServiceImpl[T]) Query(ctx context.Context, query string, args ...interface{}) (result []*T, err error) {
	err = s.read(ctx, func(repo repository.Repository[T]) error {
		result, err = repo.FromSql(ctx, query, args...)
		return err
	})
	return result, err
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, models ...*T) (int64, error) {
	return s.write(ctx, func(_ context.Context, repo repository.Repository[T]) error {
		return repo.Insert(models...)
	})
}

func (s *baseServiceImpl[T]) SaveOrUpdate(ctx context.Context, fields []string, conflictKeys []string, models ...*T) error {
	_, err := s.write(ctx, func(ctx context.Context, repo repository.Repository[T]) error {
		return repo.Upsert(ctx, fields, conflictKeys, models...)
	})
	return err
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, models ...*T) (int64, error) {
	return s.write(ctx, func(_ context.Context, repo repository.Repository[T]) error {
		return repo.Update(models...)
	})
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, models ...*T) (int64, error) {
	return s.write(ctx, func(_ context.Context, repo repository.Repository[T]) error {
		return repo.Delete(models...)
	})
}

func (s *baseServiceImpl[T]) DeleteByKey(ctx context.Context, keys ...interface{}) (int64, error) {
	return s.write(ctx, func(ctx context.Context, repo repository.Repository[T]) error {
		return repo.DeleteByKey(ctx, keys...)
	})
}

// SelectBuilder returns a query on the service connection. It is nil when
// no connection is available.
func (s *baseServiceImpl[T]) SelectBuilder() *bun.SelectQuery {
	db := s.opts.db
	if db == nil {
		db = database.GetDB()
	}
	if db == nil {
		return nil
	}
	return db.NewSelect().Model((*T)(nil))
}
