// Package logging provides structured logging for the Squidly binaries.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used by the relay, the replication client and the walkthrough
// controller.
//
// # Log Levels
//
//   - Debug: replicated values, step transitions, ping/pong
//   - Info: connections, sessions opened and closed
//   - Warn: non-fatal issues (dropped connections, ignored commands)
//   - Error: failures that abort an operation
//
// # Silent Mode
//
// When neither a level nor SQUIDLY_LOG_LEVEL is set the package installs a
// nop logger, so terminal front-ends are not interleaved with log output.
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Specialized Logging
//
//	logging.LogConnection(remoteAddr, sessionID, "websocket_upgraded")
//	logging.LogReplication("walk-through/state", "sent", rev, payload)
//	logging.LogStepTransition("calibration-size", "calibration-speed", "driving")
//
// # Thread Safety
//
// All logging functions are safe for concurrent use once Initialize has
// returned.
package logging
