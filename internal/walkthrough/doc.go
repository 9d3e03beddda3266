// Package walkthrough drives guided setup walkthroughs and keeps them in step
// between the host and the participant of a session.
//
// A Controller owns a registry of Steps. Each step names the settings path and
// window it needs, the grid areas the mask should leave uncovered, and the text
// of the instruction modal. Steps are linked into chains by NextStepID and
// PrevStepID; following an undefined edge ends the walkthrough.
//
// # Replication
//
// After every local transition the controller publishes a derived State to
// the "state" key of its channel, debounced so that observers only see settled
// transitions. Remote values are replayed through SetState in Following mode,
// which runs the same transitions but never publishes. Bind subscribes to the
// channel and recognises the controller's own writes when they come back.
//
//	ch := sdata.Scope(client, "walk-through")
//	ctrl := walkthrough.NewController(walkthrough.Config{Channel: ch, Mask: mask, Modal: modal})
//	cat, _ := walkthrough.DefaultCatalog()
//	_ = cat.Register(ctrl, walkthrough.BuildOptions{Hooks: hooks})
//	defer ctrl.Bind(ctx)()
//	err := ctrl.Start(ctx, "calibration-size")
//
// # Concurrency
//
// Transitions are single-flight. Start, GoToStep, Next, Previous, End and
// SetState each wait for the previous transition to finish, or return the
// context error if their context ends first. Hooks run inside a transition and
// must only use the overlay helpers (Mask, Modal, TrackOverlay, OnEnd, ...).
//
// # Catalogs
//
// Steps can be written in YAML and loaded with LoadCatalog. DefaultCatalog
// holds the built-in eye gaze, switch and cursor walkthroughs. WatchCatalog
// reloads a catalog file as it is edited.
package walkthrough
