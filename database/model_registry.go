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
	"reflect"
	"sort"
	"sync"
)

var defaultRegistry = NewModelRegistry()

// EntityModel is an entity type known to the module: migrations create its
// table and InitDB registers it with Bun. Lower priorities come first, so
// referenced tables should get a lower value than the tables pointing at
// them.
type EntityModel struct {
	Instance interface{}
	Priority int
}

// ModelRegistry stores entity models, one per Go type.
type ModelRegistry struct {
	mu     sync.RWMutex
	models map[reflect.Type]EntityModel
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{models: make(map[reflect.Type]EntityModel)}
}

// Register adds or replaces the model of instance's type.
func (r *ModelRegistry) Register(instance interface{}, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[reflect.TypeOf(instance)] = EntityModel{Instance: instance, Priority: priority}
}

// Models returns the registered models by ascending priority, ties broken
// by type name.
func (r *ModelRegistry) Models() []EntityModel {
	r.mu.RLock()
	out := make([]EntityModel, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return reflect.TypeOf(out[i].Instance).String() < reflect.TypeOf(out[j].Instance).String()
	})
	return out
}

// Instances returns the model instances in Models order.
func (r *ModelRegistry) Instances() []interface{} {
	models := r.Models()
	out := make([]interface{}, len(models))
	for i, m := range models {
		out[i] = m.Instance
	}
	return out
}

// RegisterModel adds instance, a nil struct pointer such as (*User)(nil),
// to the default registry.
func RegisterModel(instance interface{}, priority int) {
	defaultRegistry.Register(instance, priority)
}

// RegisteredModels returns the instances of the default registry.
func RegisteredModels() []interface{} {
	return defaultRegistry.Instances()
}
