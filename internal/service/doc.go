// Package service contains the application-specific use cases and business
// logic. It orchestrates interactions between domain objects and the task
// store (defined in internal/store) to fulfill application features.
//
// TaskService is the single entry point for everything a client can do to a
// task: submit it, inspect it, reschedule it, cancel it, retry it, or delete
// it. The service validates input, runs the intent parser, and hands freshly
// queued work to the broker; the worker pool and scheduler own the task from
// there.
//
// Services receive dependencies through constructor injection and translate
// store-level errors into application-level errors meaningful to the API.
package service
