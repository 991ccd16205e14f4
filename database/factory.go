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
	"time"

	"github.com/uptrace/bun"
)

// DatabaseFactory creates a configured database manager and provides
// helpers for initialization, health checks and statistics.
type DatabaseFactory struct {
	manager AbstractDatabaseManager
	config  *Config
	logger  Logger
	metrics *Metrics
}

func NewDatabaseFactory() *DatabaseFactory {
	return &DatabaseFactory{logger: GetLogger()}
}

// WithMetrics makes managers created afterwards record query durations.
func (f *DatabaseFactory) WithMetrics(m *Metrics) *DatabaseFactory {
	f.metrics = m
	return f
}

// CreateFromConfig applies DB_* overrides to cfg, validates it and builds
// the manager.
func (f *DatabaseFactory) CreateFromConfig(cfg *Config) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	OverrideFromEnv(&cfg.Connection)
	if err := cfg.Connection.Validate(); err != nil {
		return nil, err
	}

	f.config = cfg
	f.manager = NewDatabaseManager(cfg, WithManagerLogger(f.logger), WithManagerMetrics(f.metrics))
	return f.manager, nil
}

// InitializeDatabase connects and runs migrations when the configuration
// asks for them.
func (f *DatabaseFactory) InitializeDatabase(ctx context.Context) error {
	if f.manager == nil {
		return fmt.Errorf("database manager not created")
	}
	if err := f.manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if f.config.Migrate.EnableMigrateOnStartup {
		if err := f.manager.RunMigrations(ctx); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
	}
	f.logger.Info("Database initialization completed")
	return nil
}

func (f *DatabaseFactory) GetManager() AbstractDatabaseManager { return f.manager }

// GetDB returns the Bun database, or nil before InitializeDatabase.
func (f *DatabaseFactory) GetDB() *bun.DB {
	if f.manager == nil {
		return nil
	}
	return f.manager.GetDB()
}

func (f *DatabaseFactory) SetLogger(logger Logger) {
	f.logger = logger
	if f.manager != nil {
		f.manager.SetLogger(logger)
	}
}

func (f *DatabaseFactory) Close() error {
	if f.manager == nil {
		return nil
	}
	return f.manager.Disconnect()
}

func (f *DatabaseFactory) GetHealthStatus(ctx context.Context) *HealthStatus {
	if f.manager == nil {
		return &HealthStatus{LastError: "Database manager not initialized", LastCheckTime: time.Now()}
	}
	return f.manager.HealthCheck(ctx)
}

func (f *DatabaseFactory) GetStats() *DBStats {
	if f.manager == nil {
		return &DBStats{}
	}
	return f.manager.GetStats()
}
