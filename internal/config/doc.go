// Package config provides user configuration management for Squidly.
//
// This package manages a YAML configuration file holding how to reach the
// relay, keyboard and walkthrough preferences, and the participant profiles
// offered by the setup flow. The file follows OS-specific conventions for
// storage location.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/squidly/config.yaml or $HOME/.config/squidly/config.yaml
//   - macOS: $HOME/.config/squidly/config.yaml
//   - Windows: %LOCALAPPDATA%\squidly\config.yaml
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	registry.Session.RelayURL = "ws://studio.local:8080"
//	if _, err := registry.AddProfile("Kim"); err != nil {
//	    log.Fatal(err)
//	}
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Example File
//
//	version: 1
//	session:
//	    relay_url: ws://studio.local:8080
//	    role: host
//	    auto_discover: true
//	    discover_timeout: 5
//	keyboard:
//	    max_suggestions: 5
//	walkthrough:
//	    debounce_ms: 50
//	profiles:
//	    - name: Alex
//	      id: 3f0c2a9b81d4
//
// # Thread Safety
//
// File writes are serialized by a package mutex and are atomic (write to a
// temporary file, then rename). The global registry is loaded once; use
// ReloadRegistry to pick up changes made by another process.
package config
