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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var sqlSilent atomic.Bool

// SetSqlSilent mutes QueryHook and SlowQueryHook output.
func SetSqlSilent(b bool) { sqlSilent.Store(b) }

var operationColors = map[string]*color.Color{
	"SELECT": color.New(color.FgGreen),
	"INSERT": color.New(color.FgBlue),
	"UPDATE": color.New(color.FgYellow),
	"DELETE": color.New(color.FgMagenta),
}

func operationColor(op string, background bool) *color.Color {
	if background {
		switch op {
		case "SELECT":
			return color.New(color.BgGreen, color.FgHiWhite)
		case "INSERT":
			return color.New(color.BgBlue, color.FgHiWhite)
		case "UPDATE":
			return color.New(color.BgYellow, color.FgHiWhite)
		case "DELETE":
			return color.New(color.BgMagenta, color.FgHiWhite)
		}
		return color.New(color.BgRed, color.FgHiWhite)
	}
	if c, ok := operationColors[op]; ok {
		return c
	}
	return color.New(color.FgRed)
}

// QueryHook prints executed statements. The environment variable named by
// envName overrides the configured switch: "0" or "" disables it, "1"
// prints failed statements only and "2" prints everything.
type QueryHook struct {
	envName string
	enabled bool
	verbose bool
	writer  io.Writer
}

var _ bun.QueryHook = (*QueryHook)(nil)

func NewQueryHook(envName string, enabled, verbose bool, w io.Writer) *QueryHook {
	if w == nil {
		w = os.Stdout
	}
	return &QueryHook{envName: envName, enabled: enabled, verbose: verbose, writer: w}
}

func (h *QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if sqlSilent.Load() {
		return
	}
	enabled, verbose := h.enabled, h.verbose
	if env, ok := os.LookupEnv(h.envName); ok {
		enabled = env != "" && env != "0"
		verbose = env == "2"
	}
	if !enabled {
		return
	}
	if !verbose {
		switch {
		case event.Err == nil, errors.Is(event.Err, sql.ErrNoRows), errors.Is(event.Err, sql.ErrTxDone):
			return
		}
	}

	dur := time.Since(event.StartTime)
	op := event.Operation()
	line := fmt.Sprintf("%s %s %12s  %s",
		time.Now().Format("2006-01-02 15:04:05.000"),
		color.CyanString("[UOW]"),
		dur.Round(time.Microsecond),
		operationColor(op, false).Sprint(event.Query),
	)
	if event.Err != nil {
		_, kind := ClassifyError(event.Err)
		line += "\t" + color.New(color.BgRed).Sprintf(" %s: %s ", kind, event.Err)
	}
	_, _ = fmt.Fprintln(h.writer, line)
}

// SlowQueryHook prints successful statements slower than slowTime. Setting
// the variable named by fromEnv to "1" enables it.
type SlowQueryHook struct {
	fromEnv  string
	enabled  bool
	slowTime time.Duration
	writer   io.Writer
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

func NewSlowQueryHook(fromEnv string, enabled bool, slowTime time.Duration, w io.Writer) *SlowQueryHook {
	if w == nil {
		w = os.Stdout
	}
	return &SlowQueryHook{fromEnv: fromEnv, enabled: enabled, slowTime: slowTime, writer: w}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if sqlSilent.Load() || event.Err != nil {
		return
	}
	enabled := h.enabled
	if env, ok := os.LookupEnv(h.fromEnv); ok {
		enabled = strings.TrimSpace(env) == "1"
	}
	if !enabled {
		return
	}

	dur := time.Since(event.StartTime)
	if dur <= h.slowTime {
		return
	}
	_, _ = fmt.Fprintf(h.writer, "%s %s %12s  %s\n",
		time.Now().Format("2006-01-02 15:04:05.000"),
		color.YellowString("[UOW_SLOW]"),
		dur.Round(time.Microsecond),
		operationColor(event.Operation(), true).Sprint(event.Query),
	)
}
