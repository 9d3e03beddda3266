// Package session names the parts of a shared Squidly session: its frames,
// the roles of its two clients and the occupancy of the shared view.
package session
