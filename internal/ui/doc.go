// Package ui provides terminal UI components for the squidly CLIs.
//
// Components render to strings with lipgloss and are printed through a
// Printer, which sizes them to the terminal (golang.org/x/term). Unlike the
// interactive wizard in internal/wizard/tui, these follow a "print and exit"
// pattern suited to scripts and pipes.
//
// # Components
//
//   - Header: command banner with the operation name and its parameters
//   - Result: success, warning and failure boxes with troubleshooting tips
//   - Progress: walkthrough position bar and step list
//   - RenderSuggestions: the word suggestion bar
//   - Overlay: terminal implementation of the walkthrough mask and modal
//   - Confirm: typed-phrase confirmation for destructive commands
//
// # Overlay
//
// An Overlay is handed to walkthrough.Config as Modal and Viewport, and its
// MaskOverlay as Mask:
//
//	overlay := ui.NewOverlay()
//	ctrl := walkthrough.NewController(walkthrough.Config{
//	    Mask:     overlay.MaskOverlay(),
//	    Modal:    overlay,
//	    Viewport: overlay,
//	})
//	overlay.OnChange(func() { fmt.Println(overlay.Render(60, 12)) })
//
// Step titles and content may carry <br> markup; the overlay turns it into
// line breaks and drops other tags.
//
// # Logging Integration
//
// zap logging is silent unless SQUIDLY_LOG_LEVEL is set, so curated UI output
// is not interleaved with log lines.
package ui
