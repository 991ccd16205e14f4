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
	"database/sql"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/liuyl1992/UnitOfWork/database"
	"github.com/uptrace/bun"
)

// UnitOfWork coordinates the repositories of one DbContext and commits
// their staged changes together.
//
// Like its DbContext, a UnitOfWork is not safe for concurrent use; only
// the repository registry is guarded.
type UnitOfWork struct {
	id       string
	dbc      *database.DbContext
	logger   database.Logger
	mu       sync.Mutex
	repos    map[reflect.Type]interface{}
	disposed bool
}

// NewUnitOfWork wraps dbc. A nil dbc fails with database.ErrNilContext.
func NewUnitOfWork(dbc *database.DbContext) (*UnitOfWork, error) {
	if dbc == nil {
		return nil, database.ErrNilContext
	}
	return &UnitOfWork{
		id:     uuid.NewString(),
		dbc:    dbc,
		logger: dbc.Logger(),
		repos:  make(map[reflect.Type]interface{}),
	}, nil
}

// Open builds a DbContext over db and a unit of work on top of it. Pass
// database.WithOwnership() to have Close also close db.
func Open(db *bun.DB, opts ...database.ContextOption) (*UnitOfWork, error) {
	dbc, err := database.NewDbContext(db, opts...)
	if err != nil {
		return nil, err
	}
	return NewUnitOfWork(dbc)
}

// ID identifies the unit in log records.
func (u *UnitOfWork) ID() string { return u.id }

func (u *UnitOfWork) DbContext() *database.DbContext { return u.dbc }

// SaveChanges commits every change staged through the unit's repositories
// in one transaction and returns the affected entity row count. With
// nothing staged it returns 0 without touching the database.
func (u *UnitOfWork) SaveChanges(ctx context.Context, ensureAutoHistory bool) (int64, error) {
	rows, err := u.dbc.SaveChanges(ctx, ensureAutoHistory)
	if err != nil {
		return 0, err
	}
	if rows > 0 {
		u.logger.Debug("Unit of work saved", "uow", u.id, "rows", rows)
	}
	return rows, nil
}

// SaveChangesWith commits the changes of others and of u in a single
// transaction. The units are flushed in the order given, u last. All
// units must share u's connection pool, otherwise ErrIncompatibleContext
// is returned before any statement runs. On failure everything is rolled
// back, every unit keeps its pending changes and the original error is
// returned.
func (u *UnitOfWork) SaveChangesWith(ctx context.Context, ensureAutoHistory bool, others ...*UnitOfWork) (int64, error) {
	if err := u.dbc.CheckDisposed(); err != nil {
		return 0, err
	}
	units, err := u.participants(others)
	if err != nil {
		return 0, err
	}
	if len(units) == 1 {
		return u.SaveChanges(ctx, ensureAutoHistory)
	}

	tx, err := u.dbc.DB().BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}
	restore := make([]*bun.Tx, len(units))
	var unset database.UnsetKeys
	for i, unit := range units {
		unset = append(unset, unit.dbc.CaptureUnsetKeys()...)
		restore[i] = unit.dbc.Transaction()
		_ = unit.dbc.UseTransaction(&tx)
	}
	defer func() {
		for i, unit := range units {
			unit.dbc.ClearTransaction()
			if restore[i] != nil {
				_ = unit.dbc.UseTransaction(restore[i])
			}
		}
	}()

	var total int64
	for _, unit := range units {
		n, err := unit.dbc.Flush(ctx, tx, ensureAutoHistory)
		if err != nil {
			_ = tx.Rollback()
			unset.Reset()
			u.dbc.ReportSave(err, 0)
			u.logger.Warn("Unit of work batch rolled back", "uow", u.id, "failed", unit.id, "units", len(units))
			return 0, err
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		unset.Reset()
		u.dbc.ReportSave(err, 0)
		return 0, err
	}
	for _, unit := range units {
		unit.dbc.AcceptChanges()
	}
	u.dbc.ReportSave(nil, total)
	u.logger.Debug("Unit of work batch saved", "uow", u.id, "units", len(units), "rows", total)
	return total, nil
}

// participants returns others in order, without duplicates and without u,
// followed by u.
func (u *UnitOfWork) participants(others []*UnitOfWork) ([]*UnitOfWork, error) {
	seen := map[*UnitOfWork]bool{u: true}
	units := make([]*UnitOfWork, 0, len(others)+1)
	for _, o := range others {
		if o == nil {
			return nil, database.ErrNilContext
		}
		if seen[o] {
			continue
		}
		seen[o] = true
		if err := o.dbc.CheckDisposed(); err != nil {
			return nil, err
		}
		if !u.dbc.ShareConnection(o.dbc) {
			return nil, database.ErrIncompatibleContext
		}
		units = append(units, o)
	}
	return append(units, u), nil
}

// ChangeDatabase switches the unit to another database on the same MySQL
// server.
func (u *UnitOfWork) ChangeDatabase(ctx context.Context, name string) error {
	return u.dbc.ChangeDatabase(ctx, name)
}

// ExecuteSqlCommand runs a raw statement immediately and returns the
// affected row count.
func (u *UnitOfWork) ExecuteSqlCommand(ctx context.Context, query string, args ...interface{}) (int64, error) {
	return u.dbc.ExecuteSqlCommand(ctx, query, args...)
}

// Close releases the repositories and the context. It is safe to call more
// than once.
func (u *UnitOfWork) Close() error {
	u.mu.Lock()
	if u.disposed {
		u.mu.Unlock()
		return nil
	}
	u.disposed = true
	u.repos = make(map[reflect.Type]interface{})
	u.mu.Unlock()
	return u.dbc.Close()
}
