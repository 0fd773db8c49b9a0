// Package logger provides structured logging functionality for the application.
//
// It utilizes Go's standard library log/slog package to implement structured JSON logging
// with configurable log levels, and carries a request-scoped logger through context.Context
// so that stores and services log with the trace ID of the request they serve.
package logger
