// Package audit implements async delivery of security-relevant identity events.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON lines, slog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: structured record with timestamp, type, identity, action, IP, metadata.
//
// This package owns buffering and delivery. Which events are emitted is
// decided by the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goIdentity or any sibling internal package.
//   - Carry passwords, hashes, auth keys or tokens in an Event.
package audit
