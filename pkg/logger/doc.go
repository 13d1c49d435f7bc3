// Package logger builds the application's slog logger: JSON records in
// production, human readable text everywhere else.
package logger
