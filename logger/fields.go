package logger

import (
	"go.uber.org/zap"
)

// Standard field names for structured logging.
// Use these constants instead of raw strings to keep log keys consistent.
const (
	// Identity
	FieldRequestID = "request_id"
	FieldComponent = "component"

	// Documents and projects
	FieldURI         = "uri"
	FieldPath        = "path"
	FieldProjectRoot = "project_root"
	FieldSyntax      = "syntax"
	FieldLine        = "line"
	FieldCharacter   = "character"

	// Entities
	FieldEntityID   = "entity_id"
	FieldEntityKind = "entity_kind"

	// Diagnostics and linting
	FieldSource = "source"
	FieldState  = "state"
	FieldCount  = "count"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	detector := project.NewDetector(project.DetectorConfig{
//	    Logger: logger.ComponentLogger("project.detector"),
//	})
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// OrGlobal returns l when non-nil, otherwise a named child of the global logger.
func OrGlobal(l *zap.SugaredLogger, name string) *zap.SugaredLogger {
	if l != nil {
		return l
	}
	return ComponentLogger(name)
}
