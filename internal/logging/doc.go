// Package logging provides structured logging for the LIFX LAN client.
//
// This package wraps a process-wide zap logger. Logging is silent unless a
// level is passed to Initialize or LIFXLAN_LOG_LEVEL is set, so CLI output
// stays clean by default.
//
// # Log Levels
//
//   - Debug: frame hex dumps, unknown packet types, unmatched responses
//   - Info: hub discovery, connections and disconnections
//   - Warn: packets that fail to parse, dropped bridge clients
//   - Error: socket failures
//
// # Components
//
// Hub connections, the discovery listener and the bridge take a *zap.Logger
// option and default to a child of the global logger:
//
//	log := logging.Named("hub").With(zap.String("hub", addr))
//	logging.LogFrame(log, "in", addr, frame)
//
// # Configuration
//
//	if err := logging.Initialize(flagLogLevel); err != nil {
//	    return err
//	}
//	defer logging.Sync()
package logging
