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
	"strings"
	"time"

	"github.com/liuyl1992/UnitOfWork/types"
	"github.com/uptrace/bun"
)

// AutoHistory is one change-audit row written by SaveChanges when auto
// history is requested.
type AutoHistory struct {
	bun.BaseModel `bun:"table:auto_histories,alias:ah"`

	ID        int64            `bun:"id,pk,autoincrement" json:"id"`
	RowID     string           `bun:"row_id,notnull" json:"row_id"`
	TableName string           `bun:"table_name,notnull" json:"table_name"`
	Changed   types.JsonObject `bun:"changed,type:text" json:"changed"`
	Kind      string           `bun:"kind,notnull" json:"kind"`
	Created   time.Time        `bun:"created,nullzero,notnull,default:current_timestamp" json:"created"`
}

// EnsureAutoHistory creates the auto-history table when it is missing.
func (c *DbContext) EnsureAutoHistory(ctx context.Context) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}
	_, err := c.IDB().NewCreateTable().
		Model((*AutoHistory)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// newAutoHistory builds the audit row for an entry. It must be called
// after the entity statement so generated keys of Added rows are known.
func (c *DbContext) newAutoHistory(e *EntityEntry, state EntityState) (*AutoHistory, error) {
	current, err := types.ToJsonObject(e.Entity)
	if err != nil {
		return nil, err
	}
	changed := types.JsonObject{}
	switch state {
	case Added:
		changed["after"] = current
	case Modified:
		if e.Snapshot != nil {
			changed["before"] = e.Snapshot
		}
		changed["after"] = current
	case Deleted:
		changed["before"] = current
	}

	rowID := ""
	if values, _, err := c.PrimaryKeyValues(e.Entity); err == nil {
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = keyText(v)
		}
		rowID = strings.Join(parts, ",")
	}

	return &AutoHistory{
		RowID:     rowID,
		TableName: e.Table,
		Changed:   changed,
		Kind:      state.Name(),
		Created:   time.Now(),
	}, nil
}
