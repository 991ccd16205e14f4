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
	"github.com/uptrace/bun"
)

// Factory creates units of work over one shared bun.DB. Units it creates
// never own the DB, so closing them leaves the pool open.
type Factory struct {
	db   *bun.DB
	opts []database.ContextOption
}

func NewFactory(db *bun.DB, opts ...database.ContextOption) (*Factory, error) {
	if db == nil {
		return nil, database.ErrNilDB
	}
	return &Factory{db: db, opts: opts}, nil
}

// Create returns a fresh unit of work with an empty tracker.
func (f *Factory) Create() (*UnitOfWork, error) {
	return Open(f.db, f.opts...)
}

// Do runs fn with a fresh unit of work and saves what fn staged when it
// returns without error. The unit is closed in every case.
func (f *Factory) Do(ctx context.Context, ensureAutoHistory bool, fn func(ctx context.Context, uow *UnitOfWork) error) (int64, error) {
	uow, err := f.Create()
	if err != nil {
		return 0, err
	}
	defer uow.Close()

	if err := fn(ctx, uow); err != nil {
		return 0, err
	}
	return uow.SaveChanges(ctx, ensureAutoHistory)
}
