// Package logger provides structured logging for the sync pipeline built on zerolog.
//
// The package exposes a Logger interface with leveled methods and field
// attachment, a console writer with optional file sink, and a TestLogger
// that captures messages for assertions. A process-wide logger is installed
// via Initialize and reachable through GetLogger.
package logger
