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
	"fmt"
	"reflect"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// KeySetter is implemented by entities that can populate a zero value
// with only their primary key. Repositories use it to delete by key
// without reading the row first.
type KeySetter interface {
	SetPrimaryKey(keys ...interface{}) error
}

// Table returns Bun's table metadata for the struct type behind entity,
// which may be a struct pointer or a reflect.Type.
func (c *DbContext) Table(entity interface{}) (*schema.Table, error) {
	var typ reflect.Type
	switch v := entity.(type) {
	case reflect.Type:
		typ = v
	default:
		typ = reflect.TypeOf(entity)
	}
	for typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil, ErrNotPointer
	}
	return c.db.Table(typ), nil
}

// PrimaryKeyColumns returns the primary key column names of the entity.
func (c *DbContext) PrimaryKeyColumns(entity interface{}) ([]string, error) {
	table, err := c.Table(entity)
	if err != nil {
		return nil, err
	}
	if len(table.PKs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPrimaryKey, table.TypeName)
	}
	cols := make([]string, len(table.PKs))
	for i, pk := range table.PKs {
		cols[i] = pk.Name
	}
	return cols, nil
}

// PrimaryKeyValues reads the primary key values of a struct pointer. ok
// is false while any key part is still zero.
func (c *DbContext) PrimaryKeyValues(entity interface{}) (values []interface{}, ok bool, err error) {
	table, err := c.Table(entity)
	if err != nil {
		return nil, false, err
	}
	if len(table.PKs) == 0 {
		return nil, false, fmt.Errorf("%w: %s", ErrNoPrimaryKey, table.TypeName)
	}
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return nil, false, ErrNotPointer
	}
	strct := v.Elem()
	ok = true
	values = make([]interface{}, len(table.PKs))
	for i, pk := range table.PKs {
		if pk.HasZeroValue(strct) {
			ok = false
		}
		values[i] = pk.Value(strct).Interface()
	}
	return values, ok, nil
}

func keyText(k interface{}) string {
	if v := reflect.ValueOf(k); v.Kind() == reflect.Ptr && !v.IsNil() {
		k = v.Elem().Interface()
	}
	return fmt.Sprintf("%v", k)
}

// identityKey builds the identity map key "table|len:value|len:value".
// The length prefix keeps values that contain the separator apart.
func identityKey(table string, keys []interface{}) string {
	var b strings.Builder
	b.WriteString(table)
	for _, k := range keys {
		text := keyText(k)
		_, _ = fmt.Fprintf(&b, "|%d:%s", len(text), text)
	}
	return b.String()
}

// WherePrimaryKey appends one unqualified "pk = ?" condition per key
// column. Unqualified names stay valid when the table expression was
// replaced and the dialect drops the alias in UPDATE or DELETE.
func WherePrimaryKey[Q interface {
	Where(query string, args ...interface{}) Q
}](q Q, columns []string, values []interface{}) Q {
	for i, col := range columns {
		q = q.Where("? = ?", bun.Ident(col), values[i])
	}
	return q
}

// EntityKey returns the identity key of entity as stored in table, or
// ok=false while its key is not yet assigned.
func (c *DbContext) EntityKey(entity interface{}, table string) (string, bool, error) {
	values, ok, err := c.PrimaryKeyValues(entity)
	if err != nil || !ok {
		return "", false, err
	}
	return identityKey(table, values), true, nil
}

// KeyFor builds the identity key of a row of table from raw key values.
func KeyFor(table string, keys ...interface{}) string {
	return identityKey(table, keys)
}

// UnsetKeys holds the zero primary key fields of Added entities, captured
// before a flush. Reset clears the values the database generated during a
// flush that was then rolled back.
type UnsetKeys []reflect.Value

// CaptureUnsetKeys records the key fields of Added entries that are still
// zero.
func (c *DbContext) CaptureUnsetKeys() UnsetKeys {
	var keys UnsetKeys
	for _, e := range c.tracker.pending() {
		if e.State != Added {
			continue
		}
		table, err := c.Table(e.Entity)
		if err != nil {
			continue
		}
		v := reflect.ValueOf(e.Entity)
		if v.Kind() != reflect.Ptr || v.IsNil() {
			continue
		}
		strct := v.Elem()
		for _, pk := range table.PKs {
			if pk.HasZeroValue(strct) {
				keys = append(keys, pk.Value(strct))
			}
		}
	}
	return keys
}

func (k UnsetKeys) Reset() {
	for _, field := range k {
		if field.CanSet() {
			field.Set(reflect.Zero(field.Type()))
		}
	}
}
