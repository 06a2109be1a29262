// Package logger provides structured JSON logging on top of log/slog.
//
// Loggers travel through request and session contexts with WithLogger, and
// components recover them with FromContext or FromContextOrDefault so that
// trace and request identifiers attached upstream appear on every line.
package logger
