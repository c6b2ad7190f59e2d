// Package gatt turns a callback-driven, single-slot GATT transport driver
// into a set of safely callable, concurrently-invokable request/response
// operations with deterministic failure on disconnect.
//
// The driver accepts one outstanding operation at a time, acknowledges the
// issuing call with an immediate boolean, and delivers the actual result
// later through an event-sink callback.
// This package provides:
//   - Global single-flight ordering of driver calls (OperationSerializer)
//   - Correlation of asynchronous completions back to their requests (EventHub)
//   - Disconnect-aware waits that never leave a caller hanging (Client)
//   - Connection-state broadcast with latest-value replay (StateVar, StateMonitor)
//   - Connect bootstrap with cancellation-safe teardown (Dial)
package gatt
