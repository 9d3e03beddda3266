// Package protocol implements the replication wire protocol spoken between
// squidly clients and squidly-relay.
//
// Every websocket text frame carries one JSON Message:
//
//	{"type":"set","id":7,"path":"walk-through/state","value":{"currentStepId":"calibration-size","isActive":true}}
//
// # Message Types
//
// Client to relay:
//   - subscribe / unsubscribe: start or stop receiving values for a path
//   - set: replace the value at a path (null deletes it)
//   - update: shallow-merge a JSON object into the value at a path
//
// Relay to client:
//   - value: the current value of a subscribed path, sent once on subscribe
//     and again after every write by any peer (including the writer)
//   - ack: a set or update with the same id was applied at revision rev
//   - error: a request with the same id was rejected
//
// # Paths
//
// Paths are slash separated and relative to the session, for example
// "walk-through/setupState" or "session-main/occupier". Empty segments and
// "." or ".." are rejected.
//
// # Ordering
//
// The relay applies writes in arrival order with last-write-wins semantics and
// stamps each value with a per-session revision so clients can log and
// compare what they saw.
package protocol
