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

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/liuyl1992/UnitOfWork/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/feature"
)

// ContextOption configures a DbContext.
type ContextOption func(*DbContext)

// WithLogger sets the logger used for save and rollback events.
func WithLogger(logger Logger) ContextOption {
	return func(c *DbContext) { c.logger = logger }
}

// WithOwnership makes Close also close the underlying bun.DB.
func WithOwnership() ContextOption {
	return func(c *DbContext) { c.owned = true }
}

// WithMetrics records save outcomes on m.
func WithMetrics(m *Metrics) ContextOption {
	return func(c *DbContext) { c.metrics = m }
}

// DbContext is the change-tracking session repositories work against: it
// stages inserts, updates and deletes, keeps an identity map of the rows
// it has read, and flushes everything in one transaction on SaveChanges.
//
// A DbContext is not safe for concurrent use. All calls on one context,
// including those made through its repositories, must be sequenced by the
// caller, and only one call may be outstanding at a time.
type DbContext struct {
	db       *bun.DB
	tx       *bun.Tx
	tracker  *changeTracker
	logger   Logger
	metrics  *Metrics
	owned    bool
	disposed bool
	database string
}

// NewDbContext wraps db. A nil db fails immediately with ErrNilDB.
func NewDbContext(db *bun.DB, opts ...ContextOption) (*DbContext, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	c := &DbContext{
		db:      db,
		tracker: newChangeTracker(),
		logger:  GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// DB returns the bun.DB the context was built on.
func (c *DbContext) DB() *bun.DB { return c.db }

// IDB returns the enlisted transaction, or the bun.DB when there is none.
func (c *DbContext) IDB() bun.IDB {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

// Transaction returns the enlisted transaction, if any.
func (c *DbContext) Transaction() *bun.Tx { return c.tx }

func (c *DbContext) Disposed() bool { return c.disposed }

func (c *DbContext) Logger() Logger { return c.logger }

func (c *DbContext) checkDisposed() error {
	if c == nil {
		return ErrNilContext
	}
	if c.disposed {
		return ErrDisposed
	}
	return nil
}

// CheckDisposed returns ErrDisposed once the context has been closed.
func (c *DbContext) CheckDisposed() error { return c.checkDisposed() }

// UseTransaction enlists the context in a transaction it does not own.
// Until ClearTransaction, queries and saves run on tx and SaveChanges
// neither commits nor accepts changes; the transaction owner calls
// AcceptChanges after a successful commit.
func (c *DbContext) UseTransaction(tx *bun.Tx) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}
	c.tx = tx
	return nil
}

func (c *DbContext) ClearTransaction() { c.tx = nil }

// ShareConnection reports whether both contexts use the same *sql.DB
// pool, which is what a shared transaction needs.
func (c *DbContext) ShareConnection(other *DbContext) bool {
	return other != nil && c.db.DB == other.db.DB
}

// Database returns the database selected by ChangeDatabase, or "".
func (c *DbContext) Database() string { return c.database }

// ChangeDatabase qualifies every table built afterwards with name, so the
// context reads and writes another database on the same server. Only
// MySQL supports it.
func (c *DbContext) ChangeDatabase(ctx context.Context, name string) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}
	if c.db.Dialect().Name() != dialect.MySQL {
		return fmt.Errorf("%w: change database on %s", ErrUnsupportedDialect, c.db.Dialect().Name())
	}
	exists, err := c.IDB().NewSelect().
		TableExpr("information_schema.SCHEMATA").
		Where("SCHEMA_NAME = ?", name).
		Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("database %q does not exist", name)
	}
	c.database = name
	c.logger.Info("Context database changed", "database", name)
	return nil
}

// TableName resolves the table entity is stored in: table when given,
// Bun's model table otherwise.
func (c *DbContext) TableName(entity interface{}, table string) (string, error) {
	if table != "" {
		return table, nil
	}
	t, err := c.Table(entity)
	if err != nil {
		return "", err
	}
	return t.Name, nil
}

// NeedsTableExpr reports whether queries for entity stored in table must
// override Bun's model table.
func (c *DbContext) NeedsTableExpr(entity interface{}, table string) bool {
	if c.database != "" {
		return true
	}
	if table == "" {
		return false
	}
	t, err := c.Table(entity)
	return err != nil || t.Name != table
}

// ModelTableExpr returns a Bun ModelTableExpr query and its args for
// table, qualified with the database chosen by ChangeDatabase.
func (c *DbContext) ModelTableExpr(table string, withAlias bool) (string, []interface{}) {
	query := "?"
	args := []interface{}{bun.Ident(table)}
	if c.database != "" {
		query = "?.?"
		args = []interface{}{bun.Ident(c.database), bun.Ident(table)}
	}
	if withAlias {
		query += " AS ?TableAlias"
	}
	return query, args
}

func (c *DbContext) identityTable(table string) string {
	if c.database != "" {
		return c.database + "." + table
	}
	return table
}

// Add stages entity for insertion.
func (c *DbContext) Add(entity interface{}, table string) error {
	table, err := c.prepare(entity, table)
	if err != nil {
		return err
	}
	if e, ok := c.tracker.entry(entity); ok {
		if e.State == Deleted {
			c.tracker.setState(e, Modified)
		}
		return nil
	}
	c.tracker.track(entity, table, "", Added)
	return nil
}

// Update marks entity as modified. An entity that is staged for insertion
// stays Added. A different tracked instance with the same key is replaced.
func (c *DbContext) Update(entity interface{}, table string) error {
	table, err := c.prepare(entity, table)
	if err != nil {
		return err
	}
	if e, ok := c.tracker.entry(entity); ok {
		if e.State != Added {
			c.tracker.setState(e, Modified)
		}
		return nil
	}
	key, err := c.requireKey(entity, table)
	if err != nil {
		return err
	}
	var snapshot types.JsonObject
	if old, ok := c.tracker.lookup(key); ok {
		snapshot = old.Snapshot
		c.tracker.detach(old)
	}
	e := c.tracker.track(entity, table, key, Modified)
	e.Snapshot = snapshot
	return nil
}

// Remove marks entity for deletion. An entity that was only staged for
// insertion is detached instead.
func (c *DbContext) Remove(entity interface{}, table string) error {
	table, err := c.prepare(entity, table)
	if err != nil {
		return err
	}
	if e, ok := c.tracker.entry(entity); ok {
		if e.State == Added {
			c.tracker.detach(e)
			return nil
		}
		c.tracker.setState(e, Deleted)
		return nil
	}
	key, err := c.requireKey(entity, table)
	if err != nil {
		return err
	}
	if old, ok := c.tracker.lookup(key); ok {
		c.tracker.setState(old, Deleted)
		return nil
	}
	c.tracker.track(entity, table, key, Deleted)
	return nil
}

// Attach tracks a persisted entity as Unchanged and returns the instance
// the context holds for its key: an already tracked instance wins over
// the one passed in.
func (c *DbContext) Attach(entity interface{}, table string) (interface{}, error) {
	table, err := c.prepare(entity, table)
	if err != nil {
		return nil, err
	}
	if e, ok := c.tracker.entry(entity); ok {
		return e.Entity, nil
	}
	key, err := c.requireKey(entity, table)
	if err != nil {
		return nil, err
	}
	if e, ok := c.tracker.lookup(key); ok {
		return e.Entity, nil
	}
	e := c.tracker.track(entity, table, key, Unchanged)
	e.Snapshot, _ = types.ToJsonObject(entity)
	return entity, nil
}

// Detach stops tracking entity.
func (c *DbContext) Detach(entity interface{}) {
	if e, ok := c.tracker.entry(entity); ok {
		c.tracker.detach(e)
	}
}

// Lookup returns the tracked entity of table with the given key values,
// whatever its state.
func (c *DbContext) Lookup(table string, keys ...interface{}) (interface{}, bool) {
	e, ok := c.tracker.lookup(identityKey(c.identityTable(table), keys))
	if !ok {
		return nil, false
	}
	return e.Entity, true
}

// Entry returns the tracker record of entity.
func (c *DbContext) Entry(entity interface{}) (*EntityEntry, bool) {
	return c.tracker.entry(entity)
}

// State returns the tracking state of entity, Detached when untracked.
func (c *DbContext) State(entity interface{}) EntityState {
	if e, ok := c.tracker.entry(entity); ok {
		return e.State
	}
	return Detached
}

// Entries returns the tracked entries in staging order.
func (c *DbContext) Entries() []*EntityEntry {
	out := make([]*EntityEntry, len(c.tracker.entries))
	copy(out, c.tracker.entries)
	return out
}

func (c *DbContext) HasChanges() bool { return c.tracker.hasChanges() }

func (c *DbContext) prepare(entity interface{}, table string) (string, error) {
	if err := c.checkDisposed(); err != nil {
		return "", err
	}
	if entity == nil {
		return "", ErrNotPointer
	}
	return c.TableName(entity, table)
}

func (c *DbContext) requireKey(entity interface{}, table string) (string, error) {
	key, ok, err := c.EntityKey(entity, c.identityTable(table))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %T has no key value", ErrNoPrimaryKey, entity)
	}
	return key, nil
}

// SaveChanges flushes every staged entry as one atomic unit and returns
// the number of entity rows affected. Without staged entries it returns 0
// and sends nothing to the database. When ensureAutoHistory is set an
// AutoHistory row is written for each flushed entry.
func (c *DbContext) SaveChanges(ctx context.Context, ensureAutoHistory bool) (int64, error) {
	if err := c.checkDisposed(); err != nil {
		return 0, err
	}
	if !c.tracker.hasChanges() {
		return 0, nil
	}

	var rows int64
	var err error
	if c.tx != nil {
		rows, err = c.Flush(ctx, c.tx, ensureAutoHistory)
	} else {
		unset := c.CaptureUnsetKeys()
		err = c.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			n, err := c.Flush(ctx, tx, ensureAutoHistory)
			rows = n
			return err
		})
		if err != nil {
			unset.Reset()
		}
	}
	if err != nil {
		c.ReportSave(err, 0)
		return 0, err
	}
	if c.tx == nil {
		c.AcceptChanges()
	}
	c.ReportSave(nil, rows)
	return rows, nil
}

// Flush writes every staged entry through idb in staging order without
// changing tracker state, so a rolled back flush can be retried. Keys the
// database generates are written into Added entities; callers that roll
// back idb reset them with CaptureUnsetKeys taken before the flush.
func (c *DbContext) Flush(ctx context.Context, idb bun.IDB, ensureAutoHistory bool) (int64, error) {
	if err := c.checkDisposed(); err != nil {
		return 0, err
	}
	var total int64
	for _, e := range c.tracker.pending() {
		n, err := c.flushEntry(ctx, idb, e)
		if err != nil {
			return total, err
		}
		total += n

		if ensureAutoHistory {
			h, err := c.newAutoHistory(e, e.State)
			if err != nil {
				return total, err
			}
			q := idb.NewInsert().Model(h)
			if c.database != "" {
				expr, args := c.ModelTableExpr("auto_histories", false)
				q = q.ModelTableExpr(expr, args...)
			}
			if _, err := q.Exec(ctx); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

func (c *DbContext) flushEntry(ctx context.Context, idb bun.IDB, e *EntityEntry) (int64, error) {
	override := c.NeedsTableExpr(e.Entity, e.Table)
	var res sql.Result
	var err error

	switch e.State {
	case Added:
		q := idb.NewInsert().Model(e.Entity)
		if override {
			expr, args := c.ModelTableExpr(e.Table, false)
			q = q.ModelTableExpr(expr, args...)
		}
		res, err = q.Exec(ctx)
	case Modified:
		cols, vals, kerr := c.keyOf(e.Entity)
		if kerr != nil {
			return 0, kerr
		}
		q := idb.NewUpdate().Model(e.Entity)
		if override {
			expr, args := c.ModelTableExpr(e.Table, c.db.HasFeature(feature.UpdateTableAlias))
			q = q.ModelTableExpr(expr, args...)
		}
		res, err = WherePrimaryKey(q, cols, vals).Exec(ctx)
	case Deleted:
		cols, vals, kerr := c.keyOf(e.Entity)
		if kerr != nil {
			return 0, kerr
		}
		q := idb.NewDelete().Model(e.Entity)
		if override {
			expr, args := c.ModelTableExpr(e.Table, c.db.HasFeature(feature.DeleteTableAlias))
			q = q.ModelTableExpr(expr, args...)
		}
		res, err = WherePrimaryKey(q, cols, vals).Exec(ctx)
	default:
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (c *DbContext) keyOf(entity interface{}) ([]string, []interface{}, error) {
	cols, err := c.PrimaryKeyColumns(entity)
	if err != nil {
		return nil, nil, err
	}
	vals, ok, err := c.PrimaryKeyValues(entity)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: %T has no key value", ErrNoPrimaryKey, entity)
	}
	return cols, vals, nil
}

// AcceptChanges marks flushed entries as persisted: Added and Modified
// become Unchanged with a fresh snapshot, Deleted entries are detached.
func (c *DbContext) AcceptChanges() {
	for _, e := range c.tracker.pending() {
		switch e.State {
		case Deleted:
			c.tracker.detach(e)
		case Added, Modified:
			e.State = Unchanged
			if key, ok, err := c.EntityKey(e.Entity, c.identityTable(e.Table)); err == nil && ok {
				e.key = key
				c.tracker.identity[key] = e
			}
			e.Snapshot, _ = types.ToJsonObject(e.Entity)
		}
	}
}

// ReportSave logs and records the outcome of a save.
func (c *DbContext) ReportSave(err error, rows int64) {
	if err != nil {
		_, kind := ClassifyError(err)
		c.logger.Warn("SaveChanges rolled back", "error", err, "kind", kind.String())
		c.metrics.observeSave(false, 0)
		return
	}
	c.logger.Debug("SaveChanges completed", "rows", rows)
	c.metrics.observeSave(true, rows)
}

// ExecuteSqlCommand runs a raw statement on the context connection and
// returns the affected row count. Bun formats "?" placeholders; the
// statement itself is not parsed or escaped.
func (c *DbContext) ExecuteSqlCommand(ctx context.Context, query string, args ...interface{}) (int64, error) {
	if err := c.checkDisposed(); err != nil {
		return 0, err
	}
	start := time.Now()
	res, err := c.IDB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	c.logger.Debug("Raw SQL executed", "rows", n, "duration", time.Since(start))
	return n, nil
}

// Close releases the context: the tracker is cleared and, when the
// context owns it, the bun.DB is closed. Closing twice is a no-op.
func (c *DbContext) Close() error {
	if c == nil || c.disposed {
		return nil
	}
	c.disposed = true
	c.tracker.reset()
	c.tx = nil
	if c.owned {
		return c.db.Close()
	}
	return nil
}
