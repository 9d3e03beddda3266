// Package urls provides centralized constants for the documentation URLs
// printed by the CLIs.
//
// Usage:
//
//	import "github.com/muurk/squidly/internal/urls"
//
//	fmt.Printf("See: %s\n", urls.RelaySetup)
package urls
