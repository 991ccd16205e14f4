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
	"errors"
	"reflect"

	"github.com/liuyl1992/UnitOfWork/database"
	"github.com/liuyl1992/UnitOfWork/repository"
)

var ErrNilRepository = errors.New("unitofwork: repository cannot be nil")

func entityType[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// GetRepository returns the repository of T, creating the generic one on
// first use and returning the same instance afterwards. After Close it
// returns a repository whose operations fail with database.ErrDisposed.
func GetRepository[T any](u *UnitOfWork) repository.Repository[T] {
	typ := entityType[T]()
	u.mu.Lock()
	defer u.mu.Unlock()

	if cached, ok := u.repos[typ]; ok {
		if repo, ok := cached.(repository.Repository[T]); ok {
			return repo
		}
	}
	repo, _ := repository.NewRepository[T](u.dbc)
	if !u.disposed {
		u.repos[typ] = repo
	}
	return repo
}

// RegisterRepository installs a custom repository for T, replacing any
// cached one. The repository should work on u.DbContext() so its changes
// are part of the unit's saves.
func RegisterRepository[T any](u *UnitOfWork, repo repository.Repository[T]) error {
	if repo == nil {
		return ErrNilRepository
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.disposed {
		return database.ErrDisposed
	}
	u.repos[entityType[T]()] = repo
	return nil
}

// FromSql runs a raw SELECT on the unit's connection and scans rows into T.
func FromSql[T any](ctx context.Context, u *UnitOfWork, query string, args ...interface{}) ([]*T, error) {
	return GetRepository[T](u).FromSql(ctx, query, args...)
}
