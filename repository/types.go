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

	"github.com/liuyl1992/UnitOfWork/database"
	"github.com/liuyl1992/UnitOfWork/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// QueryRepository reads entities. A nil *types.QueryOptions means no
// predicate, no ordering, no includes, page 0 of size 20 and no tracking.
type QueryRepository[T any] interface {
	GetPagedList(ctx context.Context, opts *types.QueryOptions) (*types.PagedList[T], error)

	// GetFirstOrDefault returns nil, nil when nothing matches.
	GetFirstOrDefault(ctx context.Context, opts *types.QueryOptions) (*T, error)

	GetAll(ctx context.Context, opts *types.QueryOptions) ([]*T, error)

	// Find looks in the context first, then queries by primary key and
	// tracks the result. Absent rows give nil, nil.
	Find(ctx context.Context, keys ...interface{}) (*T, error)

	Count(ctx context.Context, filter *types.QueryFilter) (int, error)

	Exists(ctx context.Context, filter *types.QueryFilter) (bool, error)

	// FromSql runs a raw SELECT and scans the rows into T.
	FromSql(ctx context.Context, query string, args ...interface{}) ([]*T, error)
}

// CommandRepository stages changes in the DbContext. Nothing reaches the
// database until the owning unit of work saves.
type CommandRepository[T any] interface {
	Insert(entities ...*T) error
	InsertRange(entities []*T) error
	Update(entities ...*T) error
	UpdateRange(entities []*T) error
	Delete(entities ...*T) error
	DeleteRange(entities []*T) error

	// DeleteByKey stages removal of the row with the given key. Entities
	// implementing database.KeySetter are removed without a read; others
	// are found first. A missing row is not an error.
	DeleteByKey(ctx context.Context, keys ...interface{}) error

	// Upsert writes immediately, bypassing the change tracker, inside the
	// context transaction when one is enlisted.
	Upsert(ctx context.Context, fields []string, conflictKeys []string, entities ...*T) error
}

// Repository is the generic entity repository bound to one DbContext.
type Repository[T any] interface {
	QueryRepository[T]
	CommandRepository[T]

	// ChangeTable retargets later operations to another table with the
	// same columns, for example a monthly shard.
	ChangeTable(table string)
	TableName() string

	// Query returns a select over T with the table expression, includes,
	// filter, scopes and orders of opts applied.
	Query(opts *types.QueryOptions) *bun.SelectQuery
	NewSelect() *bun.SelectQuery
	Dialect() schema.Dialect
	Context() *database.DbContext
}
