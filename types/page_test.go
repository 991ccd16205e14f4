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
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	N int
}

func items(n int) []*item {
	out := make([]*item, n)
	for i := range out {
		out[i] = &item{N: i + 1}
	}
	return out
}

func TestNewPagedList_SecondPageOfTwentyFive(t *testing.T) {
	page, err := NewPagedList(items(25), 1, 10, 0)
	require.NoError(t, err)

	assert.Equal(t, 25, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 10)
	assert.Equal(t, 11, page.Items[0].N)
	assert.Equal(t, 20, page.Items[9].N)
	assert.True(t, page.HasPreviousPage())
	assert.True(t, page.HasNextPage())
}

func TestNewPagedList_LengthLaw(t *testing.T) {
	for _, total := range []int{0, 1, 9, 10, 11, 25} {
		for _, size := range []int{1, 3, 10} {
			for idx := 0; idx < 5; idx++ {
				page, err := NewPagedList(items(total), idx, size, 0)
				require.NoError(t, err)

				want := total - idx*size
				if want < 0 {
					want = 0
				}
				if want > size {
					want = size
				}
				name := strconv.Itoa(total) + "/" + strconv.Itoa(size) + "/" + strconv.Itoa(idx)
				assert.Len(t, page.Items, want, name)
				assert.Equal(t, (total+size-1)/size, page.TotalPages, name)
			}
		}
	}
}

func TestNewPagedList_EmptySource(t *testing.T) {
	page, err := NewPagedList(items(0), 0, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, page.TotalPages)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasNextPage())
	assert.False(t, page.HasPreviousPage())
}

func TestNewPagedList_IndexFrom(t *testing.T) {
	page, err := NewPagedList(items(25), 1, 10, 1)
	require.NoError(t, err)
	require.Len(t, page.Items, 10)
	assert.Equal(t, 1, page.Items[0].N)
	assert.False(t, page.HasPreviousPage())
}

func TestNewPagedList_RejectsInvalidArguments(t *testing.T) {
	_, err := NewPagedList(items(3), -1, 10, 0)
	assert.ErrorIs(t, err, ErrInvalidPageIndex)

	_, err = NewPagedList(items(3), 0, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidPageSize)

	_, err = NewPagedList(items(3), 0, 10, 1)
	assert.ErrorIs(t, err, ErrIndexFromOutOfRange)
}

func TestNewPagedListFrom_ConvertsOnlyThePage(t *testing.T) {
	var seen int
	conv := func(src []*item) []*string {
		seen = len(src)
		out := make([]*string, len(src))
		for i, it := range src {
			s := strconv.Itoa(it.N)
			out[i] = &s
		}
		return out
	}

	page, err := NewPagedListFrom(items(25), conv, 2, 10, 0)
	require.NoError(t, err)

	assert.Equal(t, 5, seen)
	assert.Equal(t, 25, page.TotalCount)
	require.Len(t, page.Items, 5)
	assert.Equal(t, "21", *page.Items[0])
}

func TestNewPagedListFrom_RequiresConverter(t *testing.T) {
	page, err := NewPagedListFrom[item, string](items(3), nil, 0, 10, 0)
	assert.ErrorIs(t, err, ErrNilConverter)
	assert.Nil(t, page)
}

func TestConvertPagedList(t *testing.T) {
	src, err := NewPagedList(items(7), 0, 5, 0)
	require.NoError(t, err)

	dst := ConvertPagedList(src, func(in []*item) []*int {
		out := make([]*int, len(in))
		for i, it := range in {
			n := it.N * 2
			out[i] = &n
		}
		return out
	})
	assert.Equal(t, 7, dst.TotalCount)
	assert.Equal(t, 2, dst.TotalPages)
	assert.Equal(t, 10, *dst.Items[4])
	assert.Nil(t, ConvertPagedList[item, int](nil, nil))
}

func TestQueryOptionsDefaults(t *testing.T) {
	var opts *QueryOptions
	o := opts.OrDefault()
	assert.Equal(t, 0, o.PageIndex)
	assert.Equal(t, 20, o.PageSize)
	assert.True(t, o.DisableTracking)
	assert.Nil(t, o.Filter)

	o.Where("name = ?", "x").OrderBy("id DESC").Include("Posts").Page(2, 5).WithTracking()
	assert.Equal(t, "name = ?", o.Filter.Schema)
	assert.Equal(t, []interface{}{"x"}, o.Filter.Args)
	assert.Equal(t, []string{"id DESC"}, o.Orders)
	assert.Equal(t, []string{"Posts"}, o.Includes)
	assert.Equal(t, 2, o.PageIndex)
	assert.False(t, o.DisableTracking)
}

func TestJsonObjectRoundTrip(t *testing.T) {
	obj, err := ToJsonObject(struct {
		Name string `json:"name"`
	}{Name: "a"})
	require.NoError(t, err)

	v, err := obj.Value()
	require.NoError(t, err)

	var back JsonObject
	require.NoError(t, back.Scan(v))
	assert.Equal(t, "a", back["name"])
}
