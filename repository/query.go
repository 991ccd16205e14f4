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

	"github.com/liuyl1992/UnitOfWork/types"
)

// projection drops includes: eager-loaded columns have no place in R.
func projection[T any](repo Repository[T], opts *types.QueryOptions) (*types.QueryOptions, error) {
	if err := repo.Context().CheckDisposed(); err != nil {
		return nil, err
	}
	o := *opts.OrDefault()
	o.Includes = nil
	return &o, nil
}

// GetPagedListAs pages T but scans only the columns chosen by selector
// into R. The projection is part of the SQL, so paging applies to the
// projected rows. Results are never tracked.
func GetPagedListAs[T any, R any](ctx context.Context, repo Repository[T], selector types.QueryScope, opts *types.QueryOptions) (*types.PagedList[R], error) {
	o, err := projection(repo, opts)
	if err != nil {
		return nil, err
	}
	if err := types.ValidatePage(o.PageIndex, o.PageSize, o.IndexFrom); err != nil {
		return nil, err
	}

	q := repo.Query(o)
	if selector != nil {
		q = selector(q)
	}
	total, err := q.Count(ctx)
	if err != nil {
		return nil, err
	}
	page := &types.PagedList[R]{
		PageIndex:  o.PageIndex,
		PageSize:   o.PageSize,
		IndexFrom:  o.IndexFrom,
		TotalCount: total,
		TotalPages: types.TotalPages(total, o.PageSize),
		Items:      []*R{},
	}
	if total == 0 || page.Offset() >= total {
		return page, nil
	}

	var items []*R
	if err := q.Offset(page.Offset()).Limit(o.PageSize).Scan(ctx, &items); err != nil {
		return nil, err
	}
	page.Items = items
	return page, nil
}

// GetFirstOrDefaultAs returns the first projected row, or nil, nil.
func GetFirstOrDefaultAs[T any, R any](ctx context.Context, repo Repository[T], selector types.QueryScope, opts *types.QueryOptions) (*R, error) {
	o, err := projection(repo, opts)
	if err != nil {
		return nil, err
	}
	q := repo.Query(o)
	if selector != nil {
		q = selector(q)
	}
	var items []*R
	if err := q.Limit(1).Scan(ctx, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}
