package orgerrors

import (
	"fmt"
	"time"
)

// ErrorType categorizes failures across the scan pipeline.
type ErrorType string

const (
	ErrorTypeScan        ErrorType = "scan"
	ErrorTypeWorker      ErrorType = "worker"
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeConsistency ErrorType = "consistency"
)

// ScanError represents an error while scanning a file or batch.
type ScanError struct {
	Type       ErrorType
	FilePath   string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewScanError creates a new scan error with context.
func NewScanError(op string, err error) *ScanError {
	return &ScanError{
		Type:       ErrorTypeScan,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithFile adds file information to the error.
func (e *ScanError) WithFile(path string) *ScanError {
	e.FilePath = path
	return e
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.FilePath != "" {
		return fmt.Sprintf("%s %s failed for %s: %v", e.Type, e.Operation, e.FilePath, e.Underlying)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Type, e.Operation, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ScanError) Unwrap() error {
	return e.Underlying
}

// WorkerError represents a worker-process-level failure: a crash, a refused
// launch, or an output blob that could not be decoded.
type WorkerError struct {
	Type       ErrorType
	Worker     int
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewWorkerError creates a new worker error.
func NewWorkerError(worker int, op string, err error) *WorkerError {
	return &WorkerError{
		Type:       ErrorTypeWorker,
		Worker:     worker,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface.
func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d %s failed: %v", e.Worker, e.Operation, e.Underlying)
}

// Unwrap returns the underlying error.
func (e *WorkerError) Unwrap() error {
	return e.Underlying
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error.
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// ConsistencyError is raised when a merge observes a state the invariants
// make structurally impossible, e.g. a link whose origin node is absent from
// the merged node set. It is surfaced loudly, never dropped.
type ConsistencyError struct {
	Table     string
	Key       string
	Detail    string
	Timestamp time.Time
}

// NewConsistencyError creates a new internal-consistency error.
func NewConsistencyError(table, key, detail string) *ConsistencyError {
	return &ConsistencyError{
		Table:     table,
		Key:       key,
		Detail:    detail,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("index consistency violation in %s for %q: %s", e.Table, e.Key, e.Detail)
}

// MultiError represents multiple errors.
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error, filtering out nil entries.
// Returns nil when nothing remains.
func NewMultiError(errs []error) error {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return &MultiError{Errors: filtered}
}

// Error implements the error interface.
func (e *MultiError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors.
func (e *MultiError) Unwrap() []error {
	return e.Errors
}
