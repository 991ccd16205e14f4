// Package database holds the DbContext that repositories and units of work
// run on: change tracking, identity resolution, transactional saves and
// auto-history. It also provides connection management, configuration,
// migrations, query hooks, metrics and SQL error classification on top of
// Bun.
package database
