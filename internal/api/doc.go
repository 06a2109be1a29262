// Package api exposes the learning session, memory items and refinement
// batches over HTTP. Handlers decode and validate requests, call the core
// services and map their errors to status codes. Commands the current stage
// or lock state does not allow are answered with 409 and action_disabled.
package api
