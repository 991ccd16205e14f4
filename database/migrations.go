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
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/uptrace/bun"
)

// Migration is an applied migration record.
type Migration struct {
	bun.BaseModel `bun:"table:uow_migrations,alias:m"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name"`
	AppliedAt   time.Time `bun:"applied_at"`
	Description string    `bun:"description"`
}

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationItem is one versioned bootstrap step.
type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
}

// MigrationManager bootstraps the tables of registered entity models,
// the auto-history table and configured foreign keys. Each step runs once,
// inside its own transaction, and is recorded in uow_migrations.
type MigrationManager struct {
	db       *bun.DB
	logger   Logger
	config   *Config
	registry *ModelRegistry
	extra    []MigrationItem
}

// NewMigrationManager builds a manager over db. A nil cfg enables only the
// table step; a nil logger selects GetLogger().
func NewMigrationManager(db *bun.DB, cfg *Config, logger Logger) *MigrationManager {
	if cfg == nil {
		cfg = &Config{}
	}
	if logger == nil {
		logger = GetLogger()
	}
	return &MigrationManager{db: db, logger: logger, config: cfg, registry: defaultRegistry}
}

// WithRegistry replaces the default model registry.
func (mm *MigrationManager) WithRegistry(r *ModelRegistry) *MigrationManager {
	mm.registry = r
	return mm
}

// Add appends application migrations; they run after the built-in steps
// in version order.
func (mm *MigrationManager) Add(items ...MigrationItem) *MigrationManager {
	mm.extra = append(mm.extra, items...)
	return mm
}

// RunMigrations applies every pending migration in ascending version
// order and stops at the first failure.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return ErrNilDB
	}
	if _, ok := os.LookupEnv("BUNDEBUG_MIGRATION"); !ok {
		SetSqlSilent(true)
		defer SetSqlSilent(false)
	}

	if _, err := mm.db.NewCreateTable().Model((*Migration)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations := mm.migrations()
	sort.SliceStable(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	for _, m := range migrations {
		if err := mm.runMigration(ctx, m); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}
	}
	mm.logger.Info("Database migrations completed", "count", len(migrations))
	return nil
}

func (mm *MigrationManager) migrations() []MigrationItem {
	items := []MigrationItem{{
		Version:     "001",
		Name:        "create_entity_tables",
		Description: "Create tables of registered entity models",
		Up:          mm.createEntityTables,
	}}
	if mm.config.History.Enabled {
		items = append(items, MigrationItem{
			Version:     "002",
			Name:        "create_auto_history",
			Description: "Create the auto-history table",
			Up:          createAutoHistoryTable,
		})
	}
	if mm.config.Migrate.EnableForeignKey && mm.config.Migrate.ForeignKeyFile != "" {
		items = append(items, MigrationItem{
			Version:     "003",
			Name:        "add_foreign_keys",
			Description: "Add foreign keys from " + mm.config.Migrate.ForeignKeyFile,
			Up:          mm.addForeignKeys,
		})
	}
	if mm.config.Migrate.SeedDir != "" {
		items = append(items, MigrationItem{
			Version:     "004",
			Name:        "seed_data",
			Description: "Execute SQL seed files from " + mm.config.Migrate.SeedDir,
			Up:          mm.seedData,
		})
	}
	return append(items, mm.extra...)
}

func (mm *MigrationManager) runMigration(ctx context.Context, m MigrationItem) error {
	exists, err := mm.db.NewSelect().
		Model((*Migration)(nil)).
		Where("version = ?", m.Version).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := m.Up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&Migration{
			Version:     m.Version,
			Name:        m.Name,
			AppliedAt:   time.Now(),
			Description: m.Description,
		}).Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}
	mm.logger.Info("Migration executed successfully", "version", m.Version, "name", m.Name)
	return nil
}

func (mm *MigrationManager) createEntityTables(ctx context.Context, db bun.IDB) error {
	for _, model := range mm.registry.Instances() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table %T: %w", model, err)
		}
	}
	return nil
}

func createAutoHistoryTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().Model((*AutoHistory)(nil)).IfNotExists().Exec(ctx)
	return err
}

func (mm *MigrationManager) addForeignKeys(ctx context.Context, db bun.IDB) error {
	fkm, err := NewForeignKeyManagerFromFile(mm.logger, mm.config.Migrate.ForeignKeyFile)
	if err != nil {
		return err
	}
	added := fkm.AddAll(ctx, db)
	mm.logger.Debug("Foreign keys processed", "added", added, "total", len(fkm.Constraints()))
	return nil
}

func (mm *MigrationManager) seedData(ctx context.Context, db bun.IDB) error {
	rows, err := NewSeedLoader(mm.config.Migrate.SeedDir, mm.config.Migrate.Environment).Apply(ctx, db)
	if err != nil {
		return err
	}
	mm.logger.Info("Seed data applied", "rows", rows, "environment", mm.config.Migrate.Environment)
	return nil
}

// AppliedMigrations returns the migration records ordered by version.
func (mm *MigrationManager) AppliedMigrations(ctx context.Context) ([]Migration, error) {
	var migrations []Migration
	err := mm.db.NewSelect().
		Model(&migrations).
		Order("version ASC").
		Scan(ctx)
	return migrations, err
}
