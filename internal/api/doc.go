// Package api exposes the task pipeline over HTTP: submission, status,
// listing, patching, cancellation, retry, and review decisions. Handlers
// validate requests, call the services, and map service errors to status
// codes with sanitized messages.
package api
