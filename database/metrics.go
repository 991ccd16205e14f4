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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
)

// Metrics holds the Prometheus collectors of the module. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	QueryDuration *prometheus.HistogramVec
	Saves         *prometheus.CounterVec
	RowsAffected  prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "uow_query_duration_seconds",
			Help:    "Duration of SQL statements executed through Bun.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		Saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uow_save_total",
			Help: "SaveChanges calls by result.",
		}, []string{"result"}),
		RowsAffected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uow_rows_affected_total",
			Help: "Entity rows written by successful saves.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.QueryDuration, m.Saves, m.RowsAffected} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeSave(ok bool, rows int64) {
	if m == nil {
		return
	}
	if !ok {
		m.Saves.WithLabelValues("rollback").Inc()
		return
	}
	m.Saves.WithLabelValues("commit").Inc()
	m.RowsAffected.Add(float64(rows))
}

// Hook returns a Bun query hook that feeds QueryDuration.
func (m *Metrics) Hook() bun.QueryHook { return &metricsHook{m: m} }

type metricsHook struct {
	m *Metrics
}

func (h *metricsHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *metricsHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if h.m == nil {
		return
	}
	op := strings.ToLower(event.Operation())
	if op == "" {
		op = "other"
	}
	h.m.QueryDuration.WithLabelValues(op).Observe(time.Since(event.StartTime).Seconds())
}
