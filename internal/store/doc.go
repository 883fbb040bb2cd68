// Package store defines the persistence interfaces for tasks and lifecycle
// events, plus the compare-and-swap mutation primitive every status change
// goes through. Implementations live under internal/platform/postgres and
// internal/store/memory.
package store
