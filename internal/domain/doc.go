// Package domain holds the core task pipeline entities: tasks, their
// lifecycle states and the transition rules between them, priorities,
// execution steps, and recurring schedules. It has no knowledge of storage,
// transport, or queueing.
package domain
