// Package sdata is the session data replication channel shared by a host and a
// participant.
//
// A Channel is a last-write-wins key-value tree addressed by slash separated
// paths. Writers Set a value or Update (shallow merge) an object; subscribers
// registered with OnValue receive the current value immediately and then every
// later change, including the changes they wrote themselves. Callers that must
// not react to their own writes are responsible for recognising the echo.
//
// Two implementations are provided:
//
//   - Store keeps values in memory. squidly-relay runs one Store per session and
//     tests use it directly as a loopback channel.
//   - Client speaks the JSON protocol of package protocol to a relay over a
//     websocket and mirrors the subscribed values locally.
//
// Scope narrows any Channel to a sub-frame, so the walkthrough controller can
// work with "state" while the bytes travel as "walk-through/state".
//
// Delivery to each subscriber is asynchronous and strictly ordered: a callback
// never runs concurrently with another callback of the same subscription and
// observes values in write order. Callbacks may write to the channel.
package sdata
