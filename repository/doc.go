// Package repository provides the generic Repository[T] that units of work
// hand out: paged, filtered and projected reads through Bun, and staged
// inserts, updates and deletes recorded in a database.DbContext.
package repository
