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
	"strings"

	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"
)

var fkActions = []string{"CASCADE", "RESTRICT", "SET NULL", "NO ACTION"}

// ForeignKeyConstraint describes a foreign key between two entity tables.
type ForeignKeyConstraint struct {
	Table           string `yaml:"table"`
	Column          string `yaml:"column"`
	ReferenceTable  string `yaml:"reference_table"`
	ReferenceColumn string `yaml:"reference_column"`
	OnDelete        string `yaml:"on_delete"`
	OnUpdate        string `yaml:"on_update"`
	ConstraintName  string `yaml:"constraint_name"`
}

// Name returns the explicit constraint name or fk_<table>_<column>.
func (fk ForeignKeyConstraint) Name() string {
	if fk.ConstraintName != "" {
		return fk.ConstraintName
	}
	return fmt.Sprintf("fk_%s_%s", fk.Table, fk.Column)
}

// Validate reports the first problem of the constraint definition.
func (fk ForeignKeyConstraint) Validate() error {
	switch {
	case fk.Table == "" || fk.Column == "":
		return fmt.Errorf("foreign key %q: table and column are required", fk.Name())
	case fk.ReferenceTable == "" || fk.ReferenceColumn == "":
		return fmt.Errorf("foreign key %q: reference table and column are required", fk.Name())
	}
	for _, action := range []string{fk.OnDelete, fk.OnUpdate} {
		if action != "" && !validAction(action) {
			return fmt.Errorf("foreign key %q: invalid action %q", fk.Name(), action)
		}
	}
	return nil
}

func validAction(action string) bool {
	for _, a := range fkActions {
		if strings.EqualFold(a, action) {
			return true
		}
	}
	return false
}

// query builds the ALTER TABLE statement. Identifiers are quoted by Bun;
// actions are checked by Validate.
func (fk ForeignKeyConstraint) query(db bun.IDB) *bun.RawQuery {
	q := "ALTER TABLE ? ADD CONSTRAINT ? FOREIGN KEY (?) REFERENCES ? (?)"
	if fk.OnDelete != "" {
		q += " ON DELETE " + strings.ToUpper(fk.OnDelete)
	}
	if fk.OnUpdate != "" {
		q += " ON UPDATE " + strings.ToUpper(fk.OnUpdate)
	}
	return db.NewRaw(q,
		bun.Ident(fk.Table), bun.Ident(fk.Name()), bun.Ident(fk.Column),
		bun.Ident(fk.ReferenceTable), bun.Ident(fk.ReferenceColumn))
}

// ForeignKeyConfig is the YAML document listing foreign keys.
type ForeignKeyConfig struct {
	ForeignKeys []ForeignKeyConstraint `yaml:"foreign_keys"`
}

// LoadForeignKeys parses and validates a YAML foreign key file.
func LoadForeignKeys(path string) ([]ForeignKeyConstraint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign key file: %w", err)
	}
	var cfg ForeignKeyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse foreign key file: %w", err)
	}
	for _, fk := range cfg.ForeignKeys {
		if err := fk.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg.ForeignKeys, nil
}

// ForeignKeyManager adds configured constraints to existing tables.
type ForeignKeyManager struct {
	constraints []ForeignKeyConstraint
	logger      Logger
}

func NewForeignKeyManager(logger Logger, constraints ...ForeignKeyConstraint) *ForeignKeyManager {
	if logger == nil {
		logger = GetLogger()
	}
	return &ForeignKeyManager{constraints: constraints, logger: logger}
}

// NewForeignKeyManagerFromFile loads constraints from a YAML file.
func NewForeignKeyManagerFromFile(logger Logger, path string) (*ForeignKeyManager, error) {
	constraints, err := LoadForeignKeys(path)
	if err != nil {
		return nil, err
	}
	return NewForeignKeyManager(logger, constraints...), nil
}

func (m *ForeignKeyManager) Constraints() []ForeignKeyConstraint { return m.constraints }

// ForTable returns the constraints declared on table.
func (m *ForeignKeyManager) ForTable(table string) []ForeignKeyConstraint {
	var out []ForeignKeyConstraint
	for _, fk := range m.constraints {
		if strings.EqualFold(fk.Table, table) {
			out = append(out, fk)
		}
	}
	return out
}

// AddAll adds every constraint and returns how many succeeded. Failures
// such as an existing constraint or a dialect without ALTER TABLE ADD
// CONSTRAINT are logged and skipped.
func (m *ForeignKeyManager) AddAll(ctx context.Context, db bun.IDB) int {
	added := 0
	for _, fk := range m.constraints {
		if _, err := fk.query(db).Exec(ctx); err != nil {
			m.logger.Debug("Foreign key skipped", "constraint", fk.Name(), "error", err)
			continue
		}
		m.logger.Debug("Foreign key added", "constraint", fk.Name())
		added++
	}
	return added
}
