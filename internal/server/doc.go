// Package server implements squidly-relay, the websocket hub that replicates
// session data between a host and its participants.
//
// Each session id gets its own in-memory key-value store. Clients connect to
// /ws/{session}, subscribe to paths and write with set or update frames (see
// package protocol). Every write is answered with an ack carrying the store
// revision, or an error, and every change is pushed to all subscribers of the
// path, including the writer.
//
// # Usage Example
//
//	srv, err := server.New(&server.Config{
//	    Port:      8080,
//	    RateLimit: 50,
//	    Advertise: "studio",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Start blocks until SIGINT/SIGTERM
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// # TLS
//
// The relay serves plain ws:// by default. --cert/--key load a certificate
// from disk; --generate-cert creates a self-signed one in memory.
//
// # Message Capture
//
// When AnalysisDir is set every frame in either direction is appended to a
// capture-<timestamp>.jsonl file, one MessageRecord per line. The
// analyze-messages tool summarizes these files.
//
// # Graceful Shutdown
//
// On SIGINT or SIGTERM the relay:
//  1. Stops accepting new connections
//  2. Sends a close frame to every connected client
//  3. Waits up to 10 seconds for connections to drain
//  4. Drops all session data
package server
