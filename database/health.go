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
	"time"
)

// healthMonitor calls probe every interval until stopped.
type healthMonitor struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startHealthMonitor(interval time.Duration, probe func(ctx context.Context)) *healthMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &healthMonitor{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe(ctx)
			}
		}
	}()
	return m
}

// stop cancels the monitor and waits for a running probe to return. It
// must not be called from the probe.
func (m *healthMonitor) stop() {
	m.cancel()
	<-m.done
}
