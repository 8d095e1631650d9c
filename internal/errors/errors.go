package errors

import (
	"fmt"
	"time"

	"github.com/erlscope/erlscope/internal/types"
)

// Error types for the erlscope analysis engine
type ErrorType string

const (
	// Analysis errors
	ErrorTypeAnalysis ErrorType = "analysis"
	ErrorTypeParse    ErrorType = "parse"
	ErrorTypeQuery    ErrorType = "query"

	// File errors
	ErrorTypeFileNotFound ErrorType = "file_not_found"
	ErrorTypeFileTooLarge ErrorType = "file_too_large"
	ErrorTypePermission   ErrorType = "permission"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"

	// Internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// AnalysisError represents an error during semantic analysis
type AnalysisError struct {
	Type        ErrorType
	FileID      types.FileID
	FilePath    string
	Operation   string
	Underlying  error
	Timestamp   time.Time
	Recoverable bool
}

// NewAnalysisError creates a new analysis error with context
func NewAnalysisError(op string, err error) *AnalysisError {
	return &AnalysisError{
		Type:       ErrorTypeAnalysis,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithFile adds file information to the error
func (e *AnalysisError) WithFile(fileID types.FileID, path string) *AnalysisError {
	e.FileID = fileID
	e.FilePath = path
	return e
}

// WithType overrides the error classification
func (e *AnalysisError) WithType(t ErrorType) *AnalysisError {
	e.Type = t
	return e
}

// WithRecoverable marks the error as recoverable
func (e *AnalysisError) WithRecoverable(recoverable bool) *AnalysisError {
	e.Recoverable = recoverable
	return e
}

// Error implements the error interface
func (e *AnalysisError) Error() string {
	if e.FilePath != "" {
		return fmt.Sprintf("%s %s failed for %s: %v", e.Type, e.Operation, e.FilePath, e.Underlying)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Type, e.Operation, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *AnalysisError) Unwrap() error {
	return e.Underlying
}

// IsRecoverable checks if the operation can be retried
func (e *AnalysisError) IsRecoverable() bool {
	return e.Recoverable
}

// ConfigError represents a configuration problem with a suggested fix
type ConfigError struct {
	Field      string
	Value      interface{}
	Suggestion string
	Underlying error
}

// NewConfigError creates a new configuration error
func NewConfigError(field string, value interface{}, suggestion string) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Suggestion: suggestion,
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("config field %s has invalid value %v (%s)", e.Field, e.Value, e.Suggestion)
	}
	return fmt.Sprintf("config field %s has invalid value %v", e.Field, e.Value)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}
