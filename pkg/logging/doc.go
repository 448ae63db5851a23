// Package logging provides the process-wide diagnostic logger.
//
// All diagnostics flow through this package and out a single writer chosen at
// startup. The invariant it exists to protect: when the process runs as an
// MCP server over stdio, stdout is the JSON-RPC message stream and must carry
// nothing else. Init is therefore always called with os.Stderr (or a test
// buffer), and no other package writes to stdout or creates its own logger.
//
// Messages are tagged with a subsystem name for filtering:
//
//	logging.Info("Auth", "session created: %s", logging.TruncateSessionID(id))
//
// Secrets never reach the logger: PKCE verifiers, access tokens and refresh
// tokens are not loggable values, and session IDs are truncated with
// TruncateSessionID.
package logging
