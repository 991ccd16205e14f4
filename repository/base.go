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

package repository

import (
	"context"
	"fmt"

	"github.com/liuyl1992/UnitOfWork/database"
	"github.com/liuyl1992/UnitOfWork/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

type baseRepositoryImpl[T any] struct {
	dbc   *database.DbContext
	table string
}

// NewRepository returns a repository of T over dbc.
func NewRepository[T any](dbc *database.DbContext) (Repository[T], error) {
	if dbc == nil {
		return nil, database.ErrNilContext
	}
	return &baseRepositoryImpl[T]{dbc: dbc}, nil
}

func (r *baseRepositoryImpl[T]) Context() *database.DbContext { return r.dbc }

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.dbc.DB().Dialect() }

func (r *baseRepositoryImpl[T]) ChangeTable(table string) { r.table = table }

func (r *baseRepositoryImpl[T]) TableName() string {
	name, err := r.dbc.TableName((*T)(nil), r.table)
	if err != nil {
		return r.table
	}
	return name
}

func (r *baseRepositoryImpl[T]) selectQuery(model interface{}) *bun.SelectQuery {
	q := r.dbc.IDB().NewSelect().Model(model)
	if r.dbc.NeedsTableExpr((*T)(nil), r.table) {
		expr, args := r.dbc.ModelTableExpr(r.TableName(), true)
		q = q.ModelTableExpr(expr, args...)
	}
	return q
}

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery { return r.selectQuery((*T)(nil)) }

func (r *baseRepositoryImpl[T]) Query(opts *types.QueryOptions) *bun.SelectQuery {
	return applyOptions(r.selectQuery((*T)(nil)), opts.OrDefault())
}

func applyOptions(q *bun.SelectQuery, opts *types.QueryOptions) *bun.SelectQuery {
	for _, rel := range opts.Includes {
		q = q.Relation(rel)
	}
	if opts.Filter != nil && opts.Filter.Schema != "" {
		q = q.Where(opts.Filter.Schema, opts.Filter.Args...)
	}
	for _, scope := range opts.Scopes {
		q = scope(q)
	}
	if len(opts.Orders) > 0 {
		q = q.Order(opts.Orders...)
	}
	return q
}

// track replaces every item by the instance the context tracks for its key.
func (r *baseRepositoryImpl[T]) track(items []*T) ([]*T, error) {
	for i, item := range items {
		tracked, err := r.dbc.Attach(item, r.table)
		if err != nil {
			return nil, err
		}
		items[i] = tracked.(*T)
	}
	return items, nil
}

func (r *baseRepositoryImpl[T]) GetPagedList(ctx context.Context, opts *types.QueryOptions) (*types.PagedList[T], error) {
	opts = opts.OrDefault()
	if err := types.ValidatePage(opts.PageIndex, opts.PageSize, opts.IndexFrom); err != nil {
		return nil, err
	}
	if err := r.dbc.CheckDisposed(); err != nil {
		return nil, err
	}

	var items []*T
	q := applyOptions(r.selectQuery(&items), opts)
	total, err := q.Count(ctx)
	if err != nil {
		return nil, err
	}

	page := &types.PagedList[T]{
		PageIndex:  opts.PageIndex,
		PageSize:   opts.PageSize,
		IndexFrom:  opts.IndexFrom,
		TotalCount: total,
		TotalPages: types.TotalPages(total, opts.PageSize),
		Items:      []*T{},
	}
	if total == 0 || page.Offset() >= total {
		return page, nil
	}

	if err := q.Offset(page.Offset()).Limit(opts.PageSize).Scan(ctx); err != nil {
		return nil, err
	}
	if !opts.DisableTracking {
		if items, err = r.track(items); err != nil {
			return nil, err
		}
	}
	page.Items = items
	return page, nil
}

func (r *baseRepositoryImpl[T]) GetFirstOrDefault(ctx context.Context, opts *types.QueryOptions) (*T, error) {
	opts = opts.OrDefault()
	if err := r.dbc.CheckDisposed(); err != nil {
		return nil, err
	}

	var items []*T
	if err := applyOptions(r.selectQuery(&items), opts).Limit(1).Scan(ctx); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	if !opts.DisableTracking {
		if _, err := r.track(items); err != nil {
			return nil, err
		}
	}
	return items[0], nil
}

func (r *baseRepositoryImpl[T]) GetAll(ctx context.Context, opts *types.QueryOptions) ([]*T, error) {
	opts = opts.OrDefault()
	if err := r.dbc.CheckDisposed(); err != nil {
		return nil, err
	}

	var items []*T
	if err := applyOptions(r.selectQuery(&items), opts).Scan(ctx); err != nil {
		return nil, err
	}
	if !opts.DisableTracking {
		return r.track(items)
	}
	return items, nil
}

func (r *baseRepositoryImpl[T]) keyColumns(keys []interface{}) ([]string, error) {
	cols, err := r.dbc.PrimaryKeyColumns((*T)(nil))
	if err != nil {
		return nil, err
	}
	if len(keys) != len(cols) {
		return nil, fmt.Errorf("%w: got %d values for %d key columns", database.ErrKeyMismatch, len(keys), len(cols))
	}
	return cols, nil
}

func (r *baseRepositoryImpl[T]) Find(ctx context.Context, keys ...interface{}) (*T, error) {
	if err := r.dbc.CheckDisposed(); err != nil {
		return nil, err
	}
	cols, err := r.keyColumns(keys)
	if err != nil {
		return nil, err
	}
	if tracked, ok := r.dbc.Lookup(r.TableName(), keys...); ok {
		return tracked.(*T), nil
	}

	var items []*T
	q := r.selectQuery(&items)
	for i, col := range cols {
		q = q.Where("?TableAlias.? = ?", bun.Ident(col), keys[i])
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	items, err = r.track(items)
	if err != nil {
		return nil, err
	}
	return items[0], nil
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, filter *types.QueryFilter) (int, error) {
	if err := r.dbc.CheckDisposed(); err != nil {
		return 0, err
	}
	return r.filtered(filter).Count(ctx)
}

func (r *baseRepositoryImpl[T]) Exists(ctx context.Context, filter *types.QueryFilter) (bool, error) {
	if err := r.dbc.CheckDisposed(); err != nil {
		return false, err
	}
	return r.filtered(filter).Exists(ctx)
}

func (r *baseRepositoryImpl[T]) filtered(filter *types.QueryFilter) *bun.SelectQuery {
	q := r.selectQuery((*T)(nil))
	if filter != nil && filter.Schema != "" {
		q = q.Where(filter.Schema, filter.Args...)
	}
	return q
}

func (r *baseRepositoryImpl[T]) FromSql(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	if err := r.dbc.CheckDisposed(); err != nil {
		return nil, err
	}
	var items []*T
	if err := r.dbc.IDB().NewRaw(query, args...).Scan(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *baseRepositoryImpl[T]) each(entities []*T, stage func(interface{}, string) error) error {
	for _, e := range entities {
		if e == nil {
			return database.ErrNotPointer
		}
		if err := stage(e, r.table); err != nil {
			return err
		}
	}
	return nil
}

func (r *baseRepositoryImpl[T]) Insert(entities ...*T) error { return r.InsertRange(entities) }

func (r *baseRepositoryImpl[T]) InsertRange(entities []*T) error {
	return r.each(entities, r.dbc.Add)
}

func (r *baseRepositoryImpl[T]) Update(entities ...*T) error { return r.UpdateRange(entities) }

func (r *baseRepositoryImpl[T]) UpdateRange(entities []*T) error {
	return r.each(entities, r.dbc.Update)
}

func (r *baseRepositoryImpl[T]) Delete(entities ...*T) error { return r.DeleteRange(entities) }

func (r *baseRepositoryImpl[T]) DeleteRange(entities []*T) error {
	return r.each(entities, r.dbc.Remove)
}

func (r *baseRepositoryImpl[T]) DeleteByKey(ctx context.Context, keys ...interface{}) error {
	if err := r.dbc.CheckDisposed(); err != nil {
		return err
	}
	if _, err := r.keyColumns(keys); err != nil {
		return err
	}
	if tracked, ok := r.dbc.Lookup(r.TableName(), keys...); ok {
		return r.dbc.Remove(tracked, r.table)
	}

	stub := new(T)
	if ks, ok := interface{}(stub).(database.KeySetter); ok {
		if err := ks.SetPrimaryKey(keys...); err != nil {
			return err
		}
		return r.dbc.Remove(stub, r.table)
	}

	entity, err := r.Find(ctx, keys...)
	if err != nil || entity == nil {
		return err
	}
	return r.dbc.Remove(entity, r.table)
}
