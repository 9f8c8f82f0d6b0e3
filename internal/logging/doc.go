// Package logging provides a simple leveled logging interface for the
// gallery engine, backed by zerolog.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable (or
// DEBUG=true). Output is a colored console format when stderr is a terminal
// and JSON lines otherwise.
package logging
