// Package server implements the HTTP side of the deployhook webhook listener.
//
// This package provides:
//   - The POST /hook endpoint, which authenticates GitHub deliveries,
//     matches them to a configured repository, synchronizes its working copy
//     and dispatches the deployment command
//   - Health and delivery status endpoints for monitoring
//   - Optional per-IP rate limiting of webhook deliveries
//   - Structured logging of all HTTP requests
//
// The server integrates with other packages:
//   - internal/config: repository table and matching
//   - internal/deployment: git synchronization and command execution
//   - internal/async: supervised execution of commands after the response
//   - internal/history: SQLite-based delivery history
//   - internal/notify: GitHub commit statuses
//
// Deliveries that are valid HTTP but not actionable (malformed JSON, unknown
// repository, filtered event) get 304 Not Modified so senders do not retry.
package server
