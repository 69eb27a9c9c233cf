// Package logging builds the zap loggers used across lifeline.
//
// Packages take a *zap.Logger and default to zap.NewNop(); only the command
// layer constructs a real logger, from the log section of the config.
package logging
