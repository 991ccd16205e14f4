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

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPageIndex    = errors.New("page index must be greater than or equal to 0")
	ErrInvalidPageSize     = errors.New("page size must be greater than 0")
	ErrIndexFromOutOfRange = errors.New("index from must be less than or equal to page index")
	ErrNilConverter        = errors.New("page converter cannot be nil")
)

// PagedList holds one page of items together with the metadata of the
// whole filtered source it was cut from.
type PagedList[T any] struct {
	PageIndex  int  `json:"page_index"`
	PageSize   int  `json:"page_size"`
	IndexFrom  int  `json:"index_from"`
	TotalCount int  `json:"total_count"`
	TotalPages int  `json:"total_pages"`
	Items      []*T `json:"items"`
}

// HasPreviousPage reports whether a page exists before this one.
func (p *PagedList[T]) HasPreviousPage() bool {
	return p.PageIndex-p.IndexFrom > 0
}

// HasNextPage reports whether a page exists after this one.
func (p *PagedList[T]) HasNextPage() bool {
	return p.PageIndex-p.IndexFrom+1 < p.TotalPages
}

// Offset returns the number of source items skipped before this page.
func (p *PagedList[T]) Offset() int {
	return (p.PageIndex - p.IndexFrom) * p.PageSize
}

// ValidatePage checks paging arguments the same way every PagedList
// constructor does.
func ValidatePage(pageIndex, pageSize, indexFrom int) error {
	if pageIndex < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPageIndex, pageIndex)
	}
	if pageSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPageSize, pageSize)
	}
	if indexFrom > pageIndex {
		return fmt.Errorf("%w: indexFrom=%d pageIndex=%d", ErrIndexFromOutOfRange, indexFrom, pageIndex)
	}
	return nil
}

// TotalPages returns ceil(totalCount / pageSize).
func TotalPages(totalCount, pageSize int) int {
	if totalCount <= 0 || pageSize <= 0 {
		return 0
	}
	return (totalCount + pageSize - 1) / pageSize
}

// NewPagedList counts the whole source and keeps only the requested page.
func NewPagedList[T any](source []*T, pageIndex, pageSize, indexFrom int) (*PagedList[T], error) {
	return NewPagedListFrom[T, T](source, func(page []*T) []*T {
		return append([]*T(nil), page...)
	}, pageIndex, pageSize, indexFrom)
}

// NewPagedListFrom pages the source and then applies converter to the
// page slice only.
func NewPagedListFrom[S any, R any](source []*S, converter func([]*S) []*R, pageIndex, pageSize, indexFrom int) (*PagedList[R], error) {
	if converter == nil {
		return nil, ErrNilConverter
	}
	if err := ValidatePage(pageIndex, pageSize, indexFrom); err != nil {
		return nil, err
	}
	total := len(source)
	page := &PagedList[R]{
		PageIndex:  pageIndex,
		PageSize:   pageSize,
		IndexFrom:  indexFrom,
		TotalCount: total,
		TotalPages: TotalPages(total, pageSize),
		Items:      make([]*R, 0),
	}

	start := page.Offset()
	if start >= total {
		return page, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	if items := converter(source[start:end]); items != nil {
		page.Items = items
	}
	return page, nil
}

// ConvertPagedList maps the items of an already paged list, keeping its
// metadata.
func ConvertPagedList[S any, R any](source *PagedList[S], converter func([]*S) []*R) *PagedList[R] {
	if source == nil {
		return nil
	}
	items := converter(source.Items)
	if items == nil {
		items = make([]*R, 0)
	}
	return &PagedList[R]{
		PageIndex:  source.PageIndex,
		PageSize:   source.PageSize,
		IndexFrom:  source.IndexFrom,
		TotalCount: source.TotalCount,
		TotalPages: source.TotalPages,
		Items:      items,
	}
}
