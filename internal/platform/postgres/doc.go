// Package postgres implements the task and event store interfaces on
// PostgreSQL. Optimistic concurrency is enforced in SQL: every mutation is
// a single version-guarded UPDATE, and driver errors are mapped to the
// store sentinel errors.
package postgres
