// Package config loads and validates the server, database, worker, queue,
// scheduler, and intent parser settings from the environment and optional
// config file.
package config
