// Package tui implements the full-screen terminal client for a Squidly session.
//
// Built on Bubble Tea, it follows the Elm architecture: one AppModel routes
// messages to per-screen models, and every View is a pure function of model
// state plus the shared Runtime.
//
// # Screens
//
//   - Discovery: browse for relays over mDNS or type a relay URL
//   - Connecting: dial the session websocket on the chosen relay
//   - Setup: the replicated profile and access method selection
//   - Walkthrough: the active step drawn as a terminal overlay with progress
//   - Keyboard: a text field with n-gram word prediction
//   - Failure: classified connection errors with troubleshooting
//
// All screens use RenderApplicationContainer for the shared header and
// context-sensitive footer.
//
// # Runtime
//
// A Runtime is one side of a session. It wires a walkthrough.Controller and a
// setupflow.Flow to the session channel and draws both through a ui.Overlay.
// Changes made on either side of the session arrive as a single coalesced
// refresh message; the program redraws from the runtime and switches between
// the setup and walkthrough screens as the shared state moves.
//
//	app := tui.NewAppModel(tui.AppConfig{
//	    RelayURL:  "ws://192.168.1.20:8080",
//	    SessionID: id,
//	    Role:      session.RoleHost,
//	})
//	if _, err := tea.NewProgram(app, tea.WithAltScreen()).Run(); err != nil {
//	    return err
//	}
//
// # Key Bindings
//
//   - Discovery: ↑/↓ navigate, enter connect, r rescan, m enter URL, q quit
//   - Setup: ↑/↓ or tab move, enter select, esc close the flow
//   - Walkthrough: n/→ next, p/← back, esc end
//   - Keyboard: ↑/↓ choose a suggestion, tab accept, enter submit, esc back
//   - Everywhere in a session: ctrl+k keyboard, f1 help, ctrl+c quit
//
// Operations that touch the session run as commands off the update loop; a
// screen ignores input until the previous operation reports back.
package tui
