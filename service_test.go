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

package unitofwork_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	unitofwork "github.com/liuyl1992/UnitOfWork"
	"github.com/liuyl1992/UnitOfWork/database"
	"github.com/liuyl1992/UnitOfWork/internal/testdb"
	"github.com/liuyl1992/UnitOfWork/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type SystemConfig struct {
	bun.BaseModel `bun:"table:system_config,alias:sc"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	ConfigKey   string    `bun:"config_key,notnull,unique" json:"config_key"`
	ConfigValue string    `bun:"config_value" json:"config_value"`
	Description string    `bun:"description" json:"description"`
	ConfigType  string    `bun:"config_type,notnull,default:'string'" json:"config_type"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

func init() {
	database.RegisterModel((*SystemConfig)(nil), 10)
}

// initGlobalDB connects the process-wide database the way an application
// does at startup: configuration, then migrations of registered models.
func initGlobalDB(t *testing.T) *bun.DB {
	t.Helper()
	cfg := &database.Config{Connection: *database.DefaultConnectionConfig()}
	cfg.Connection.Type = "sqlite"
	cfg.Connection.DSN = fmt.Sprintf("file:%s?cache=shared", filepath.Join(t.TempDir(), "service.db"))
	cfg.Connection.MaxOpenConns = 1
	cfg.Connection.HealthCheckInterval = 0
	cfg.Migrate.EnableMigrateOnStartup = true
	cfg.History.Enabled = true

	db, err := database.InitDB(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.CloseDB() })
	return db
}

func TestService_Lifecycle(t *testing.T) {
	db := initGlobalDB(t)
	svc := unitofwork.NewService[SystemConfig](unitofwork.WithAutoHistory())
	ctx := context.Background()

	rows, err := svc.Save(ctx,
		&SystemConfig{ConfigKey: "site.name", ConfigValue: "unitofwork"},
		&SystemConfig{ConfigKey: "site.theme", ConfigValue: "dark"},
	)
	require.NoError(t, err)
	assert.EqualValues(t, 2, rows)
	assert.Equal(t, 2, testdb.CountRows(t, db, "auto_histories"))

	cfg, err := svc.First(ctx, types.NewQueryOptions().Where("sc.config_key = ?", "site.theme"))
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "dark", cfg.ConfigValue)

	byKey, err := svc.Get(ctx, cfg.ID)
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, "dark", byKey.ConfigValue)

	byKey.ConfigValue = "light"
	rows, err = svc.Update(ctx, byKey)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	all, err := svc.All(ctx, types.NewQueryOptions().OrderBy("config_key ASC"))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "light", all[1].ConfigValue)

	page, err := svc.Page(ctx, types.NewQueryOptions().Page(0, 1).OrderBy("id ASC"))
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Items, 1)

	n, err := svc.Count(ctx, types.NewQueryFilter("sc.config_value = ?", "light"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	raw, err := svc.Query(ctx, "SELECT * FROM system_config WHERE config_key LIKE ?", "site.%")
	require.NoError(t, err)
	assert.Len(t, raw, 2)

	rows, err = svc.DeleteByKey(ctx, cfg.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	rows, err = svc.Delete(ctx, all[0])
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)
	assert.Zero(t, testdb.CountRows(t, db, "system_config"))
	assert.NotNil(t, svc.SelectBuilder())
}

func TestService_SaveOrUpdate(t *testing.T) {
	initGlobalDB(t)
	svc := unitofwork.NewService[SystemConfig]()
	ctx := context.Background()

	fields := []string{"config_value"}
	keys := []string{"config_key"}
	require.NoError(t, svc.SaveOrUpdate(ctx, fields, keys, &SystemConfig{ConfigKey: "mode", ConfigValue: "a"}))
	require.NoError(t, svc.SaveOrUpdate(ctx, fields, keys, &SystemConfig{ConfigKey: "mode", ConfigValue: "b"}))

	cfg, err := svc.First(ctx, types.NewQueryOptions().Where("sc.config_key = ?", "mode"))
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "b", cfg.ConfigValue)

	n, err := svc.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestService_ExplicitDB(t *testing.T) {
	db := testdb.Open(t)
	svc := unitofwork.NewService[testdb.Blog](unitofwork.WithServiceDB(db))
	ctx := context.Background()

	rows, err := svc.Save(ctx, &testdb.Blog{Url: "https://a.example.com"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	missing, err := svc.Get(ctx, int64(42))
	require.NoError(t, err)
	assert.Nil(t, missing)
}
