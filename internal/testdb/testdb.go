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

// Package testdb opens throwaway SQLite databases with the blog fixtures
// used by the module tests.
package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type Blog struct {
	bun.BaseModel `bun:"table:blogs,alias:b"`

	ID     int64   `bun:"id,pk,autoincrement" json:"id"`
	Url    string  `bun:"url,notnull" json:"url"`
	Title  string  `bun:"title" json:"title"`
	Rating int     `bun:"rating" json:"rating"`
	Posts  []*Post `bun:"rel:has-many,join:id=blog_id" json:"posts,omitempty"`
}

type Post struct {
	bun.BaseModel `bun:"table:posts,alias:p"`

	ID     int64  `bun:"id,pk,autoincrement" json:"id"`
	BlogID int64  `bun:"blog_id,notnull" json:"blog_id"`
	Title  string `bun:"title" json:"title"`
	Blog   *Blog  `bun:"rel:belongs-to,join:blog_id=id" json:"blog,omitempty"`
}

// Tag has a natural string key and can be deleted by key without a read.
type Tag struct {
	bun.BaseModel `bun:"table:tags,alias:t"`

	Code string `bun:"code,pk" json:"code"`
	Name string `bun:"name" json:"name"`
}

func (t *Tag) SetPrimaryKey(keys ...interface{}) error {
	if len(keys) != 1 {
		return fmt.Errorf("tag key takes one value, got %d", len(keys))
	}
	code, ok := keys[0].(string)
	if !ok {
		return fmt.Errorf("tag key must be a string, got %T", keys[0])
	}
	t.Code = code
	return nil
}

// Link has a two-column string key.
type Link struct {
	bun.BaseModel `bun:"table:links,alias:l"`

	Source string `bun:"source,pk" json:"source"`
	Target string `bun:"target,pk" json:"target"`
	Label  string `bun:"label" json:"label"`
}

// BlogSummary is a projection target for blogs.
type BlogSummary struct {
	ID  int64  `bun:"id"`
	Url string `bun:"url"`
}

func Models() []interface{} {
	return []interface{}{(*Blog)(nil), (*Post)(nil), (*Tag)(nil), (*Link)(nil)}
}

// Open returns a fresh file-backed SQLite database with the fixture
// tables created. It is closed when the test ends.
func Open(t testing.TB) *bun.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?cache=shared", filepath.Join(t.TempDir(), "uow.db"))
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, model := range Models() {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}
	return db
}

// SeedBlogs inserts n blogs directly, bypassing any unit of work.
func SeedBlogs(t testing.TB, db *bun.DB, n int) []*Blog {
	t.Helper()
	blogs := make([]*Blog, n)
	for i := range blogs {
		blogs[i] = &Blog{
			Url:    fmt.Sprintf("https://blog-%02d.example.com", i+1),
			Title:  fmt.Sprintf("Blog %02d", i+1),
			Rating: i % 5,
		}
	}
	if n == 0 {
		return blogs
	}
	_, err := db.NewInsert().Model(&blogs).Exec(context.Background())
	require.NoError(t, err)
	return blogs
}

// CountRows counts the rows of table.
func CountRows(t testing.TB, db *bun.DB, table string) int {
	t.Helper()
	n, err := db.NewSelect().TableExpr("?", bun.Ident(table)).Count(context.Background())
	require.NoError(t, err)
	return n
}
