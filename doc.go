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

// Package unitofwork implements the unit of work pattern over Bun.
//
// A UnitOfWork owns one database.DbContext and hands out one repository per
// entity type. Inserts, updates and deletes made through those repositories
// are staged in the context and written together by SaveChanges, inside a
// single transaction:
//
//	uow, err := unitofwork.Open(db)
//	if err != nil {
//		return err
//	}
//	defer uow.Close()
//
//	blogs := unitofwork.GetRepository[Blog](uow)
//	_ = blogs.Insert(&Blog{Url: "https://example.com"})
//	rows, err := uow.SaveChanges(ctx, false)
//
// SaveChangesWith commits several units sharing one connection pool in one
// transaction. Service wraps the same machinery for one-call-one-save use.
package unitofwork
