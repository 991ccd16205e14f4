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
	"os"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
)

// ManagerOption configures a database manager.
type ManagerOption func(*defaultDatabaseManager)

// WithManagerLogger sets the manager logger.
func WithManagerLogger(logger Logger) ManagerOption {
	return func(dm *defaultDatabaseManager) { dm.logger = logger }
}

// WithManagerMetrics adds the Prometheus query hook to every connection.
func WithManagerMetrics(m *Metrics) ManagerOption {
	return func(dm *defaultDatabaseManager) { dm.metrics = m }
}

type defaultDatabaseManager struct {
	config    *Config
	conn      *ConnectionConfig
	logger    Logger
	metrics   *Metrics
	mu        sync.RWMutex
	db        *bun.DB
	sqlDB     *sql.DB
	lastError error
	monitor   *healthMonitor
}

// NewDatabaseManager returns a Bun-backed AbstractDatabaseManager. A nil
// cfg selects DefaultConnectionConfig with no type, which fails on
// Connect.
func NewDatabaseManager(cfg *Config, opts ...ManagerOption) AbstractDatabaseManager {
	if cfg == nil {
		cfg = &Config{Connection: *DefaultConnectionConfig()}
	}
	dm := &defaultDatabaseManager{
		config: cfg,
		conn:   &cfg.Connection,
		logger: GetLogger(),
	}
	for _, opt := range opts {
		opt(dm)
	}
	return dm
}

// Connect opens the pool, checks it with a ping and starts the periodic
// health check. Connecting an open manager is a no-op.
func (dm *defaultDatabaseManager) Connect(ctx context.Context) error {
	dm.mu.Lock()
	if dm.db != nil {
		dm.mu.Unlock()
		return nil
	}
	err := dm.openLocked(ctx)
	dm.mu.Unlock()
	if err != nil {
		return err
	}

	if dm.conn.HealthCheckInterval > 0 && dm.monitor == nil {
		dm.monitor = startHealthMonitor(dm.conn.HealthCheckInterval, dm.checkAndRecover)
	}
	dm.logger.Info("Database connected", "type", dm.conn.Type, "host", dm.conn.Host, "dbname", dm.conn.DBName)
	return nil
}

func (dm *defaultDatabaseManager) openLocked(ctx context.Context) error {
	if err := dm.conn.Validate(); err != nil {
		return err
	}
	sqlDB, db, err := dm.createConnection()
	if err != nil {
		dm.lastError = err
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	configureConnectionPool(sqlDB, dm.conn)

	pingCtx, cancel := context.WithTimeout(ctx, dm.connectTimeout())
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		dm.lastError = err
		_ = db.Close()
		return fmt.Errorf("database connection test failed: %w", err)
	}
	dm.db, dm.sqlDB, dm.lastError = db, sqlDB, nil
	return nil
}

func (dm *defaultDatabaseManager) connectTimeout() time.Duration {
	if dm.conn.ConnectTimeout <= 0 {
		return 30 * time.Second
	}
	return dm.conn.ConnectTimeout
}

func (dm *defaultDatabaseManager) closeLocked() error {
	if dm.db == nil {
		return nil
	}
	err := dm.db.Close()
	dm.db, dm.sqlDB = nil, nil
	return err
}

func (dm *defaultDatabaseManager) createConnection() (*sql.DB, *bun.DB, error) {
	var (
		driver  string
		dsn     string
		dialect schema.Dialect
	)
	switch dm.conn.Type {
	case "mysql":
		driver, dsn, dialect = "mysql", dm.mysqlDSN(), mysqldialect.New()
	case "postgres":
		driver, dsn, dialect = "postgres", dm.postgresDSN(), pgdialect.New()
	case "pgx":
		driver, dsn, dialect = "pgx", dm.postgresDSN(), pgdialect.New()
	case "sqlite":
		driver, dsn, dialect = sqliteshim.ShimName, dm.sqliteDSN(), sqlitedialect.New()
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", dm.conn.Type)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, err
	}
	db := bun.NewDB(sqlDB, dialect)
	db.RegisterModel(RegisteredModels()...)
	AddQueryHooks(db, dm.conn, dm.metrics)
	return sqlDB, db, nil
}

// AddQueryHooks installs the SQL log, slow query and metrics hooks that
// cfg and m ask for.
func AddQueryHooks(db *bun.DB, cfg *ConnectionConfig, m *Metrics) {
	if cfg.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	db.AddQueryHook(NewQueryHook("UOW_SQL_LOG", false, false, os.Stdout))
	if cfg.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook("UOW_SLOW_SQL_LOG", true, cfg.SlowQueryTime, os.Stderr))
	}
	if m != nil {
		db.AddQueryHook(m.Hook())
	}
}

func (dm *defaultDatabaseManager) mysqlDSN() string {
	if dm.conn.DSN != "" {
		return dm.conn.DSN
	}
	charset := dm.conn.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local&timeout=%s&readTimeout=%s&writeTimeout=%s",
		dm.conn.Username, dm.conn.Password, dm.conn.Host, dm.conn.Port, dm.conn.DBName,
		charset, dm.conn.ConnectTimeout, dm.conn.ReadTimeout, dm.conn.WriteTimeout)
}

func (dm *defaultDatabaseManager) postgresDSN() string {
	if dm.conn.DSN != "" {
		return dm.conn.DSN
	}
	sslMode := dm.conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		dm.conn.Username, dm.conn.Password, dm.conn.Host, dm.conn.Port, dm.conn.DBName,
		sslMode, int(dm.conn.ConnectTimeout.Seconds()))
}

func (dm *defaultDatabaseManager) sqliteDSN() string {
	if dm.conn.DSN != "" {
		return dm.conn.DSN
	}
	return fmt.Sprintf("file:%s.db?cache=shared", dm.conn.DBName)
}

func configureConnectionPool(sqlDB *sql.DB, cfg *ConnectionConfig) {
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

// Disconnect stops the health check and closes the pool.
func (dm *defaultDatabaseManager) Disconnect() error {
	if dm.monitor != nil {
		dm.monitor.stop()
		dm.monitor = nil
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.db == nil {
		return nil
	}
	if err := dm.closeLocked(); err != nil {
		dm.logger.Error("Failed to close database connection", "error", err)
		return err
	}
	dm.logger.Info("Database connection closed")
	return nil
}

// Reconnect replaces the pool. The health check keeps running.
func (dm *defaultDatabaseManager) Reconnect(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.closeLocked(); err != nil {
		dm.logger.Warn("Error closing the previous connection", "error", err)
	}
	return dm.openLocked(ctx)
}

func (dm *defaultDatabaseManager) Ping(ctx context.Context) error {
	db := dm.GetDB()
	if db == nil {
		return fmt.Errorf("database not connected")
	}
	return db.PingContext(ctx)
}

func (dm *defaultDatabaseManager) GetDB() *bun.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

func (dm *defaultDatabaseManager) GetSQLDB() *sql.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.sqlDB
}

// HealthCheck pings the pool and reports its usage. The ping runs without
// holding the manager lock.
func (dm *defaultDatabaseManager) HealthCheck(ctx context.Context) *HealthStatus {
	dm.mu.RLock()
	db, sqlDB := dm.db, dm.sqlDB
	dm.mu.RUnlock()

	start := time.Now()
	status := &HealthStatus{LastCheckTime: start}
	if db == nil {
		status.LastError = "database not initialized"
		return status
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := db.PingContext(pingCtx)
	status.ResponseTime = time.Since(start)
	status.Healthy = err == nil
	status.Connected = err == nil
	if err != nil {
		status.LastError = err.Error()
	}
	stats := sqlDB.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConnections

	dm.mu.Lock()
	dm.lastError = err
	dm.mu.Unlock()
	return status
}

// checkAndRecover is the health monitor probe: on failure it retries the
// connection up to MaxReconnectTries times, ReconnectInterval apart.
func (dm *defaultDatabaseManager) checkAndRecover(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	status := dm.HealthCheck(checkCtx)
	cancel()
	if status.Healthy || !dm.conn.EnableReconnect {
		return
	}

	dm.logger.Warn("Database health check failed", "error", status.LastError)
	for try := 1; try <= dm.conn.MaxReconnectTries; try++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(dm.conn.ReconnectInterval):
		}
		connectCtx, cancel := context.WithTimeout(ctx, dm.connectTimeout())
		err := dm.Reconnect(connectCtx)
		cancel()
		if err == nil {
			dm.logger.Info("Reconnect succeeded", "try", try)
			return
		}
		dm.logger.Error("Reconnect failed", "error", err, "try", try)
	}
	dm.logger.Error("Max reconnect attempts reached", "tries", dm.conn.MaxReconnectTries)
}

func (dm *defaultDatabaseManager) GetStats() *DBStats {
	dm.mu.RLock()
	sqlDB := dm.sqlDB
	dm.mu.RUnlock()
	if sqlDB == nil {
		return &DBStats{}
	}
	stats := sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

func (dm *defaultDatabaseManager) RunMigrations(ctx context.Context) error {
	db := dm.GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	return NewMigrationManager(db, dm.config, dm.logger).RunMigrations(ctx)
}

func (dm *defaultDatabaseManager) SetLogger(logger Logger) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.logger = logger
}
