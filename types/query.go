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

package types

import "github.com/uptrace/bun"

// Default paging values applied when QueryOptions are omitted.
const (
	DefaultPageIndex = 0
	DefaultPageSize  = 20
)

// QueryFilter describes a WHERE clause schema and its argument values.
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{schema, args}
}

// QueryScope customizes a select query beyond a plain filter, for example
// with grouped conditions or joins.
type QueryScope func(q *bun.SelectQuery) *bun.SelectQuery

// QueryOptions collects the optional parts of a repository read:
// predicate, ordering, eager loading, paging and tracking.
type QueryOptions struct {
	Filter          *QueryFilter
	Scopes          []QueryScope
	Orders          []string // "id ASC", "name DESC"
	Includes        []string // Bun relation names
	PageIndex       int
	PageSize        int
	IndexFrom       int
	DisableTracking bool
}

// NewQueryOptions returns options with the documented defaults:
// no predicate, no order, no include, page 0 of size 20, no tracking.
func NewQueryOptions() *QueryOptions {
	return &QueryOptions{
		PageIndex:       DefaultPageIndex,
		PageSize:        DefaultPageSize,
		DisableTracking: true,
	}
}

// OrDefault returns o or the default options when o is nil.
func (o *QueryOptions) OrDefault() *QueryOptions {
	if o == nil {
		return NewQueryOptions()
	}
	return o
}

func (o *QueryOptions) Where(schema string, args ...interface{}) *QueryOptions {
	o.Filter = NewQueryFilter(schema, args...)
	return o
}

func (o *QueryOptions) WithFilter(filter *QueryFilter) *QueryOptions {
	o.Filter = filter
	return o
}

func (o *QueryOptions) Scope(scopes ...QueryScope) *QueryOptions {
	o.Scopes = append(o.Scopes, scopes...)
	return o
}

func (o *QueryOptions) OrderBy(orders ...string) *QueryOptions {
	o.Orders = append(o.Orders, orders...)
	return o
}

func (o *QueryOptions) Include(relations ...string) *QueryOptions {
	o.Includes = append(o.Includes, relations...)
	return o
}

func (o *QueryOptions) Page(pageIndex, pageSize int) *QueryOptions {
	o.PageIndex = pageIndex
	o.PageSize = pageSize
	return o
}

func (o *QueryOptions) From(indexFrom int) *QueryOptions {
	o.IndexFrom = indexFrom
	return o
}

// WithTracking makes returned entities tracked by the context.
func (o *QueryOptions) WithTracking() *QueryOptions {
	o.DisableTracking = false
	return o
}
