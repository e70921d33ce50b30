package logger

import (
	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across plugcfg.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Components
	FieldComponent  = "component"
	FieldPlugin     = "plugin"
	FieldDependency = "dependency"

	// Operations
	FieldOperation = "operation"
	FieldPath      = "path"
	FieldOption    = "option"

	// Layers
	FieldOrigin   = "origin"
	FieldPriority = "priority"
	FieldLayer    = "layer"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount = "count"
	FieldSize  = "size"

	// Files
	FieldFile = "file"

	// Snapshots
	FieldSnapshot = "snapshot"
	FieldVersion  = "version"
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Resolver struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func New() *Resolver {
//	    return &Resolver{
//	        logger: logger.ComponentLogger("resolve"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
//
// Example:
//
//	pluginLogger := logger.ChildLogger(base, logger.FieldPlugin, desc.ID)
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
