// Package events delivers task lifecycle notifications to subscribers.
//
// A Broadcaster fans events out to per-instance subscriber groups with
// best-effort, non-blocking delivery. PublishingStore decorates a task
// store so every state-affecting write publishes its events, and Hub
// exposes the stream over websocket connections with explicit
// subscribe/unsubscribe control messages.
package events
