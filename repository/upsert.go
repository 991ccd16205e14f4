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

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
)

func (r *baseRepositoryImpl[T]) Upsert(ctx context.Context, fields []string, conflictKeys []string, entities ...*T) error {
	if err := r.dbc.CheckDisposed(); err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("upsert fields cannot be empty")
	}
	if len(entities) == 0 {
		return nil
	}
	if len(conflictKeys) == 0 {
		cols, err := r.dbc.PrimaryKeyColumns((*T)(nil))
		if err != nil {
			return err
		}
		conflictKeys = cols
	}

	rows := make([]*T, len(entities))
	copy(rows, entities)
	q := r.dbc.IDB().NewInsert().Model(&rows)
	if r.dbc.NeedsTableExpr((*T)(nil), r.table) {
		expr, args := r.dbc.ModelTableExpr(r.TableName(), false)
		q = q.ModelTableExpr(expr, args...)
	}

	switch {
	case r.dbc.DB().HasFeature(feature.InsertOnConflict):
		q = q.On("CONFLICT (?) DO UPDATE", idents(conflictKeys))
		for _, f := range fields {
			q = q.Set("? = EXCLUDED.?", bun.Ident(f), bun.Ident(f))
		}
	case r.dbc.DB().HasFeature(feature.InsertOnDuplicateKey):
		q = q.On("DUPLICATE KEY UPDATE")
		for _, f := range fields {
			q = q.Set("? = VALUES(?)", bun.Ident(f), bun.Ident(f))
		}
	default:
		return r.upsertFallback(ctx, rows)
	}
	_, err := q.Exec(ctx)
	return err
}

// upsertFallback tries an insert per row and updates by key when it fails.
func (r *baseRepositoryImpl[T]) upsertFallback(ctx context.Context, rows []*T) error {
	for _, row := range rows {
		if _, err := r.dbc.IDB().NewInsert().Model(row).Exec(ctx); err != nil {
			if _, updateErr := r.dbc.IDB().NewUpdate().Model(row).WherePK().Exec(ctx); updateErr != nil {
				return fmt.Errorf("upsert failed: insert error: %v, update error: %w", err, updateErr)
			}
		}
	}
	return nil
}

func idents(names []string) interface{} {
	out := make([]bun.Ident, len(names))
	for i, n := range names {
		out[i] = bun.Ident(n)
	}
	return bun.In(out)
}
