// Package events provides types and interfaces for an event-driven architecture.
//
// Services emit events after their transactions commit, without knowing which
// handlers will process them. Handlers run synchronously in registration order.
//
// The primary components are:
//   - Event: an envelope with a type, a JSON payload and a creation time
//   - ChangeRequestResolved: payload emitted when a change request is approved or rejected
//   - EventHandler / EventEmitter: the handler and publisher interfaces
package events
