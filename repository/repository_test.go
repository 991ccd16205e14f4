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

package repository_test

import (
	"context"
	"testing"

	"github.com/liuyl1992/UnitOfWork/database"
	"github.com/liuyl1992/UnitOfWork/internal/testdb"
	"github.com/liuyl1992/UnitOfWork/repository"
	"github.com/liuyl1992/UnitOfWork/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func newContext(t *testing.T, db *bun.DB) *database.DbContext {
	t.Helper()
	dbc, err := database.NewDbContext(db, database.WithLogger(database.NopLogger{}))
	require.NoError(t, err)
	return dbc
}

func newRepo[T any](t *testing.T, dbc *database.DbContext) repository.Repository[T] {
	t.Helper()
	repo, err := repository.NewRepository[T](dbc)
	require.NoError(t, err)
	return repo
}

func TestNewRepository_NilContext(t *testing.T) {
	_, err := repository.NewRepository[testdb.Blog](nil)
	assert.ErrorIs(t, err, database.ErrNilContext)
}

func TestGetPagedList_SecondPageOfTwentyFive(t *testing.T) {
	db := testdb.Open(t)
	testdb.SeedBlogs(t, db, 25)
	repo := newRepo[testdb.Blog](t, newContext(t, db))

	page, err := repo.GetPagedList(context.Background(), types.NewQueryOptions().Page(1, 10).OrderBy("id ASC"))
	require.NoError(t, err)

	assert.Equal(t, 25, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 10)
	assert.Equal(t, "https://blog-11.example.com", page.Items[0].Url)
	assert.Equal(t, "https://blog-20.example.com", page.Items[9].Url)
	assert.True(t, page.HasPreviousPage())
	assert.True(t, page.HasNextPage())
}

func TestGetPagedList_LastAndPastTheEnd(t *testing.T) {
	db := testdb.Open(t)
	testdb.SeedBlogs(t, db, 25)
	repo := newRepo[testdb.Blog](t, newContext(t, db))
	ctx := context.Background()

	last, err := repo.GetPagedList(ctx, types.NewQueryOptions().Page(2, 10).OrderBy("id ASC"))
	require.NoError(t, err)
	assert.Len(t, last.Items, 5)
	assert.False(t, last.HasNextPage())

	past, err := repo.GetPagedList(ctx, types.NewQueryOptions().Page(7, 10))
	require.NoError(t, err)
	assert.Equal(t, 25, past.TotalCount)
	assert.NotNil(t, past.Items)
	assert.Empty(t, past.Items)
}

func TestGetPagedList_IndexFrom(t *testing.T) {
	db := testdb.Open(t)
	testdb.SeedBlogs(t, db, 25)
	repo := newRepo[testdb.Blog](t, newContext(t, db))

	page, err := repo.GetPagedList(context.Background(), types.NewQueryOptions().Page(2, 10).From(1).OrderBy("id ASC"))
	require.NoError(t, err)
	require.Len(t, page.Items, 10)
	assert.Equal(t, "https://blog-11.example.com", page.Items[0].Url)
	assert.True(t, page.HasPreviousPage())
}

func TestGetPagedList_InvalidArguments(t *testing.T) {
	db := testdb.Open(t)
	repo := newRepo[testdb.Blog](t, newContext(t, db))
	ctx := context.Background()

	_, err := repo.GetPagedList(ctx, types.NewQueryOptions().Page(-1, 10))
	assert.ErrorIs(t, err, types.ErrInvalidPageIndex)

	_, err = repo.GetPagedList(ctx, types.NewQueryOptions().Page(0, 0))
	assert.ErrorIs(t, err, types.ErrInvalidPageSize)

	_, err = repo.GetPagedList(ctx, types.NewQueryOptions().Page(1, 10).From(2))
	assert.ErrorIs(t, err, types.ErrIndexFromOutOfRange)
}

func TestGetPagedList_FilterAndInclude(t *testing.T) {
	db := testdb.Open(t)
	blogs := testdb.SeedBlogs(t, db, 25)
	posts := []*testdb.Post{
		{BlogID: blogs[0].ID, Title: "first"},
		{BlogID: blogs[0].ID, Title: "second"},
	}
	_, err := db.NewInsert().Model(&posts).Exec(context.Background())
	require.NoError(t, err)

	repo := newRepo[testdb.Blog](t, newContext(t, db))
	opts := types.NewQueryOptions().Where("b.rating = ?", 0).Include("Posts").OrderBy("id ASC")
	page, err := repo.GetPagedList(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 5, page.TotalCount)
	require.Len(t, page.Items, 5)
	assert.Len(t, page.Items[0].Posts, 2)
	assert.Empty(t, page.Items[1].Posts)
}

func TestGetPagedList_TrackingIsOptIn(t *testing.T) {
	db := testdb.Open(t)
	testdb.SeedBlogs(t, db, 3)
	dbc := newContext(t, db)
	repo := newRepo[testdb.Blog](t, dbc)
	ctx := context.Background()

	_, err := repo.GetPagedList(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, dbc.Entries())

	page, err := repo.GetPagedList(ctx, types.NewQueryOptions().WithTracking())
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Len(t, dbc.Entries(), 3)
	assert.Equal(t, database.Unchanged, dbc.State(page.Items[0]))
}

func TestInsertThenFind(t *testing.T) {
	db := testdb.Open(t)
	dbc := newContext(t, db)
	repo := newRepo[testdb.Blog](t, dbc)
	ctx := context.Background()

	blog := &testdb.Blog{Url: "https://new.example.com", Title: "New"}
	require.NoError(t, repo.Insert(blog))
	assert.Equal(t, database.Added, dbc.State(blog))

	rows, err := dbc.SaveChanges(ctx, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)
	assert.NotZero(t, blog.ID)
	assert.Equal(t, database.Unchanged, dbc.State(blog))

	found, err := repo.Find(ctx, blog.ID)
	require.NoError(t, err)
	assert.Same(t, blog, found)

	other := newRepo[testdb.Blog](t, newContext(t, db))
	loaded, err := other.Find(ctx, blog.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "https://new.example.com", loaded.Url)
}

func TestSaveChanges_SecondSaveIsEmpty(t *testing.T) {
	db := testdb.Open(t)
	dbc := newContext(t, db)
	repo := newRepo[testdb.Blog](t, dbc)
	ctx := context.Background()

	require.NoError(t, repo.Insert(&testdb.Blog{Url: "a"}, &testdb.Blog{Url: "b"}))
	rows, err := dbc.SaveChanges(ctx, false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, rows)

	rows, err = dbc.SaveChanges(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, rows)
}

func TestFind_IdentityMap(t *testing.T) {
	db := testdb.Open(t)
	blogs := testdb.SeedBlogs(t, db, 2)
	repo := newRepo[testdb.Blog](t, newContext(t, db))
	ctx := context.Background()

	first, err := repo.Find(ctx, blogs[1].ID)
	require.NoError(t, err)
	second, err := repo.Find(ctx, blogs[1].ID)
	require.NoError(t, err)
	assert.Same(t, first, second)

	all, err := repo.GetAll(ctx, types.NewQueryOptions().WithTracking().OrderBy("id ASC"))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Same(t, first, all[1])
}

func TestFind_MissingAndKeyMismatch(t *testing.T) {
	db := testdb.Open(t)
	repo := newRepo[testdb.Blog](t, newContext(t, db))
	ctx := context.Background()

	blog, err := repo.Find(ctx, int64(404))
	require.NoError(t, err)
	assert.Nil(t, blog)

	_, err = repo.Find(ctx, 1, 2)
	assert.ErrorIs(t, err, database.ErrKeyMismatch)
}

func TestFind_CompositeKeysWithSeparator(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	_, err := db.NewInsert().Model(&[]*testdb.Link{
		{Source: "x|y", Target: "z", Label: "first"},
		{Source: "x", Target: "y|z", Label: "second"},
	}).Exec(ctx)
	require.NoError(t, err)

	dbc := newContext(t, db)
	repo := newRepo[testdb.Link](t, dbc)

	first, err := repo.Find(ctx, "x|y", "z")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "first", first.Label)

	second, err := repo.Find(ctx, "x", "y|z")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "second", second.Label)
	assert.NotSame(t, first, second)

	require.NoError(t, repo.DeleteByKey(ctx, "x", "y|z"))
	assert.Equal(t, database.Deleted, dbc.State(second))
	assert.Equal(t, database.Unchanged, dbc.State(first))

	rows, err := dbc.SaveChanges(ctx, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	var left []*testdb.Link
	require.NoError(t, db.NewSelect().Model(&left).Scan(ctx))
	require.Len(t, left, 1)
	assert.Equal(t, "first", left[0].Label)
}

func TestUpdate_TrackedEntity(t *testing.T) {
	db := testdb.Open(t)
	testdb.SeedBlogs(t, db, 3)
	dbc := newContext(t, db)
	repo := newRepo[testdb.Blog](t, dbc)
	ctx := context.Background()

	blog, err := repo.GetFirstOrDefault(ctx, types.NewQueryOptions().Where("b.url = ?", "https://blog-02.example.com").WithTracking())
	require.NoError(t, err)
	require.NotNil(t, blog)

	blog.Title = "Renamed"
	require.NoError(t, repo.Update(blog))
	assert.Equal(t, database.Modified, dbc.State(blog))

	rows, err := dbc.SaveChanges(ctx, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	var title string
	require.NoError(t, db.NewSelect().Model((*testdb.Blog)(nil)).Column("title").Where("id = ?", blog.ID).Scan(ctx, &title))
	assert.Equal(t, "Renamed", title)
}

func TestUpdate_DetachedEntityNeedsKey(t *testing.T) {
	db := testdb.Open(t)
	blogs := testdb.SeedBlogs(t, db, 1)
	dbc := newContext(t, db)
	repo := newRepo[testdb.Blog](t, dbc)

	err := repo.Update(&testdb.Blog{Url: "no key"})
	assert.ErrorIs(t, err, database.ErrNoPrimaryKey)

	require.NoError(t, repo.Update(&testdb.Blog{ID: blogs[0].ID, Url: "https://detached.example.com"}))
	rows, err := dbc.SaveChanges(context.Background(), false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)
}

func TestDelete_RemovesExactlyOneRow(t *testing.T) {
	db := testdb.Open(t)
	blogs := testdb.SeedBlogs(t, db, 3)
	dbc := newContext(t, db)
	repo := newRepo[testdb.Blog](t, dbc)
	ctx := context.Background()

	blog, err := repo.Find(ctx, blogs[1].ID)
	require.NoError(t, err)
	require.NoError(t, repo.Delete(blog))
	assert.Equal(t, database.Deleted, dbc.State(blog))

	rows, err := dbc.SaveChanges(ctx, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)
	assert.Equal(t, 2, testdb.CountRows(t, db, "blogs"))
	assert.Equal(t, database.Detached, dbc.State(blog))
}

func TestDelete_AddedEntityIsDetached(t *testing.T) {
	db := testdb.Open(t)
	dbc := newContext(t, db)
	repo := newRepo[testdb.Blog](t, dbc)

	blog := &testdb.Blog{Url: "never saved"}
	require.NoError(t, repo.Insert(blog))
	require.NoError(t, repo.Delete(blog))

	assert.Equal(t, database.Detached, dbc.State(blog))
	assert.False(t, dbc.HasChanges())
	rows, err := dbc.SaveChanges(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, rows)
}

func TestDeleteByKey_WithKeySetter(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	_, err := db.NewInsert().Model(&testdb.Tag{Code: "go", Name: "Go"}).Exec(ctx)
	require.NoError(t, err)

	dbc := newContext(t, db)
	repo := newRepo[testdb.Tag](t, dbc)
	require.NoError(t, repo.DeleteByKey(ctx, "go"))

	entries := dbc.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, database.Deleted, entries[0].State)

	rows, err := dbc.SaveChanges(ctx, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)
	assert.Zero(t, testdb.CountRows(t, db, "tags"))
}

func TestDeleteByKey_ReadsWithoutKeySetter(t *testing.T) {
	db := testdb.Open(t)
	blogs := testdb.SeedBlogs(t, db, 2)
	dbc := newContext(t, db)
	repo := newRepo[testdb.Blog](t, dbc)
	ctx := context.Background()

	require.NoError(t, repo.DeleteByKey(ctx, int64(999)))
	assert.False(t, dbc.HasChanges())

	require.NoError(t, repo.DeleteByKey(ctx, blogs[0].ID))
	rows, err := dbc.SaveChanges(ctx, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)
	assert.Equal(t, 1, testdb.CountRows(t, db, "blogs"))

	assert.ErrorIs(t, repo.DeleteByKey(ctx), database.ErrKeyMismatch)
}

func TestCountAndExists(t *testing.T) {
	db := testdb.Open(t)
	repo := newRepo[testdb.Blog](t, newContext(t, db))
	ctx := context.Background()

	n, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	ok, err := repo.Exists(ctx, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	testdb.SeedBlogs(t, db, 10)
	n, err = repo.Count(ctx, types.NewQueryFilter("b.rating >= ?", 3))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	ok, err = repo.Exists(ctx, types.NewQueryFilter("b.url = ?", "https://blog-10.example.com"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFromSql_IsNotTracked(t *testing.T) {
	db := testdb.Open(t)
	testdb.SeedBlogs(t, db, 10)
	dbc := newContext(t, db)
	repo := newRepo[testdb.Blog](t, dbc)

	blogs, err := repo.FromSql(context.Background(), "SELECT * FROM blogs WHERE rating = ?", 0)
	require.NoError(t, err)
	assert.Len(t, blogs, 2)
	assert.Empty(t, dbc.Entries())
}

func TestChangeTable(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	_, err := db.NewCreateTable().Model((*testdb.Blog)(nil)).ModelTableExpr("blogs_archive").Exec(ctx)
	require.NoError(t, err)

	dbc := newContext(t, db)
	repo := newRepo[testdb.Blog](t, dbc)
	assert.Equal(t, "blogs", repo.TableName())
	repo.ChangeTable("blogs_archive")
	assert.Equal(t, "blogs_archive", repo.TableName())

	blog := &testdb.Blog{Url: "https://archived.example.com"}
	require.NoError(t, repo.Insert(blog))
	_, err = dbc.SaveChanges(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 1, testdb.CountRows(t, db, "blogs_archive"))
	assert.Zero(t, testdb.CountRows(t, db, "blogs"))

	all, err := repo.GetAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, blog.Url, all[0].Url)

	blog.Title = "archived"
	require.NoError(t, repo.Update(blog))
	rows, err := dbc.SaveChanges(ctx, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)
}

func TestProjection(t *testing.T) {
	db := testdb.Open(t)
	testdb.SeedBlogs(t, db, 25)
	repo := newRepo[testdb.Blog](t, newContext(t, db))
	ctx := context.Background()
	summary := func(q *bun.SelectQuery) *bun.SelectQuery { return q.Column("id", "url") }

	page, err := repository.GetPagedListAs[testdb.Blog, testdb.BlogSummary](ctx, repo, summary, types.NewQueryOptions().Page(0, 10).OrderBy("id ASC"))
	require.NoError(t, err)
	assert.Equal(t, 25, page.TotalCount)
	require.Len(t, page.Items, 10)
	assert.Equal(t, "https://blog-01.example.com", page.Items[0].Url)

	one, err := repository.GetFirstOrDefaultAs[testdb.Blog, testdb.BlogSummary](ctx, repo, summary, types.NewQueryOptions().Where("b.url = ?", "https://blog-03.example.com"))
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.NotZero(t, one.ID)

	none, err := repository.GetFirstOrDefaultAs[testdb.Blog, testdb.BlogSummary](ctx, repo, summary, types.NewQueryOptions().Where("b.url = ?", "missing"))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestUpsert(t *testing.T) {
	db := testdb.Open(t)
	repo := newRepo[testdb.Tag](t, newContext(t, db))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, []string{"name"}, nil,
		&testdb.Tag{Code: "go", Name: "Go"},
		&testdb.Tag{Code: "rust", Name: "Rust"},
	))
	require.NoError(t, repo.Upsert(ctx, []string{"name"}, []string{"code"}, &testdb.Tag{Code: "go", Name: "Golang"}))

	assert.Equal(t, 2, testdb.CountRows(t, db, "tags"))
	tag, err := repo.Find(ctx, "go")
	require.NoError(t, err)
	require.NotNil(t, tag)
	assert.Equal(t, "Golang", tag.Name)

	assert.Error(t, repo.Upsert(ctx, nil, nil, &testdb.Tag{Code: "x"}))
}

func TestDisposedContext(t *testing.T) {
	db := testdb.Open(t)
	dbc := newContext(t, db)
	repo := newRepo[testdb.Blog](t, dbc)
	require.NoError(t, dbc.Close())

	_, err := repo.GetAll(context.Background(), nil)
	assert.ErrorIs(t, err, database.ErrDisposed)
	assert.ErrorIs(t, repo.Insert(&testdb.Blog{Url: "late"}), database.ErrDisposed)
	_, err = repository.GetPagedListAs[testdb.Blog, testdb.BlogSummary](context.Background(), repo, nil, nil)
	assert.ErrorIs(t, err, database.ErrDisposed)
}
