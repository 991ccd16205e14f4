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
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/uptrace/bun"
)

// AbstractDatabaseManager defines the operations for managing a database
// connection, running migrations and reporting health.
type AbstractDatabaseManager interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Reconnect(ctx context.Context) error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	GetDB() *bun.DB
	GetSQLDB() *sql.DB
	RunMigrations(ctx context.Context) error
	GetStats() *DBStats
	SetLogger(logger Logger)
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql stats returned by the manager.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

// SupportedTypes lists the accepted ConnectionConfig.Type values.
var SupportedTypes = []string{"mysql", "postgres", "pgx", "sqlite"}

// ConnectionConfig describes how to connect to a database and tune its pool.
type ConnectionConfig struct {
	Type                string        `mapstructure:"type" json:"type"` // mysql, postgres, pgx, sqlite
	Host                string        `mapstructure:"host" json:"host"`
	Port                int           `mapstructure:"port" json:"port"`
	Username            string        `mapstructure:"username" json:"username"`
	Password            string        `mapstructure:"password" json:"password"`
	DBName              string        `mapstructure:"dbname" json:"dbname"`
	DSN                 string        `mapstructure:"dsn" json:"dsn"` // used verbatim when set
	SSLMode             string        `mapstructure:"sslmode" json:"sslmode"`
	Charset             string        `mapstructure:"charset" json:"charset"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns        int           `mapstructure:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime     time.Duration `mapstructure:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `mapstructure:"conn_max_idle_time" json:"conn_max_idle_time"`
	ConnectTimeout      time.Duration `mapstructure:"connect_timeout" json:"connect_timeout"`
	ReadTimeout         time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout        time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	EnableReconnect     bool          `mapstructure:"enable_reconnect" json:"enable_reconnect"`
	ReconnectInterval   time.Duration `mapstructure:"reconnect_interval" json:"reconnect_interval"`
	MaxReconnectTries   int           `mapstructure:"max_reconnect_tries" json:"max_reconnect_tries"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval" json:"health_check_interval"`
	EnableQueryLog      bool          `mapstructure:"enable_query_log" json:"enable_query_log"`
	SlowQueryTime       time.Duration `mapstructure:"slow_query_time" json:"slow_query_time"`
}

// MigrateConfig controls table bootstrap on startup.
type MigrateConfig struct {
	EnableMigrateOnStartup bool   `mapstructure:"enable_migrate_on_startup" json:"enable_migrate_on_startup"`
	EnableForeignKey       bool   `mapstructure:"enable_foreign_key" json:"enable_foreign_key"`
	ForeignKeyFile         string `mapstructure:"foreign_key_file" json:"foreign_key_file"`
	SeedDir                string `mapstructure:"seed_dir" json:"seed_dir"`
	Environment            string `mapstructure:"environment" json:"environment"`
}

// HistoryConfig controls the auto-history table.
type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
}

// Config aggregates connection, migration and history settings.
type Config struct {
	Connection ConnectionConfig `mapstructure:"connection" json:"connection"`
	Migrate    MigrateConfig    `mapstructure:"migrate" json:"migrate"`
	History    HistoryConfig    `mapstructure:"history" json:"history"`
}

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     time.Minute * 30,
		ConnectTimeout:      time.Second * 10,
		ReadTimeout:         time.Second * 30,
		WriteTimeout:        time.Second * 30,
		EnableReconnect:     true,
		ReconnectInterval:   time.Second * 5,
		MaxReconnectTries:   3,
		HealthCheckInterval: time.Minute * 5,
		SlowQueryTime:       time.Second * 2,
	}
}

// Validate checks the fields every driver needs.
func (c *ConnectionConfig) Validate() error {
	for _, t := range SupportedTypes {
		if c.Type == t {
			if c.Type != "sqlite" && c.DSN == "" && c.Host == "" {
				return fmt.Errorf("database host is required for %s", c.Type)
			}
			if c.Type == "sqlite" && c.DSN == "" && c.DBName == "" {
				return fmt.Errorf("database name or dsn is required for sqlite")
			}
			return nil
		}
	}
	return fmt.Errorf("unsupported database type: %q, supported types: %v", c.Type, SupportedTypes)
}

func setConfigDefaults(v *viper.Viper) {
	d := DefaultConnectionConfig()
	defaults := map[string]interface{}{
		"connection.type":                  "sqlite",
		"connection.host":                  "",
		"connection.port":                  0,
		"connection.username":              "",
		"connection.password":              "",
		"connection.dbname":                "",
		"connection.dsn":                   "",
		"connection.sslmode":               "",
		"connection.charset":               "",
		"connection.max_idle_conns":        d.MaxIdleConns,
		"connection.max_open_conns":        d.MaxOpenConns,
		"connection.conn_max_lifetime":     d.ConnMaxLifetime,
		"connection.conn_max_idle_time":    d.ConnMaxIdleTime,
		"connection.connect_timeout":       d.ConnectTimeout,
		"connection.read_timeout":          d.ReadTimeout,
		"connection.write_timeout":         d.WriteTimeout,
		"connection.enable_reconnect":      d.EnableReconnect,
		"connection.reconnect_interval":    d.ReconnectInterval,
		"connection.max_reconnect_tries":   d.MaxReconnectTries,
		"connection.health_check_interval": d.HealthCheckInterval,
		"connection.enable_query_log":      false,
		"connection.slow_query_time":       d.SlowQueryTime,
		"migrate.enable_migrate_on_startup": false,
		"migrate.enable_foreign_key":        false,
		"migrate.foreign_key_file":          "",
		"migrate.seed_dir":                  "",
		"migrate.environment":               "",
		"history.enabled":                   false,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// LoadConfig reads configuration from path (yaml, json or toml by
// extension), then from UOW_* variables (UOW_CONNECTION_HOST, ...), then
// from the DB_* variables applied by OverrideFromEnv. An empty path skips
// the file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setConfigDefaults(v)
	v.SetEnvPrefix("UOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	OverrideFromEnv(&cfg.Connection)
	return &cfg, nil
}

// OverrideFromEnv overrides connection values from DB_* variables.
func OverrideFromEnv(cfg *ConnectionConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port, ok := envInt("DB_PORT"); ok {
		cfg.Port = port
	}
	if username := os.Getenv("DB_USERNAME"); username != "" {
		cfg.Username = username
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}
	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.SSLMode = sslmode
	}
	if val, ok := envInt("DB_MAX_IDLE_CONNS"); ok {
		cfg.MaxIdleConns = val
	}
	if val, ok := envInt("DB_MAX_OPEN_CONNS"); ok {
		cfg.MaxOpenConns = val
	}
	if val, ok := envInt("DB_CONN_MAX_LIFETIME"); ok {
		cfg.ConnMaxLifetime = time.Duration(val) * time.Second
	}
	if enable := os.Getenv("DB_ENABLE_RECONNECT"); enable != "" {
		cfg.EnableReconnect = enable == "true"
	}
	if val, ok := envInt("DB_RECONNECT_INTERVAL"); ok {
		cfg.ReconnectInterval = time.Duration(val) * time.Second
	}
	if enable := os.Getenv("DB_ENABLE_QUERY_LOG"); enable != "" {
		cfg.EnableQueryLog = enable == "true"
	}
}

func envInt(key string) (int, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
