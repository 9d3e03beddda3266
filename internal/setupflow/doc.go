// Package setupflow runs the profile and access method selection that leads
// into a walkthrough.
//
// The flow has three screens: profileSelection, accessMethodSelection and
// startWalkthrough. Its state lives at the "setupState" key of the session's
// walkthrough frame so that host and participant see the same screen. Either
// side may make a choice; the other side's view follows. When one side
// confirms an access method it starts the matching walkthrough and the other
// side closes its flow.
package setupflow
