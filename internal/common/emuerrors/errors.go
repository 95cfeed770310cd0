// Package emuerrors contains the error types shared by the emulator services.
//
// Only ErrConfiguration is fatal. The remaining types are recovered locally and reported through logs and
// metrics; callers should use errors.As to look through wrapped errors rather than comparing the topmost error.
package emuerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrConfiguration is returned at startup when a configuration value is invalid, e.g. a non-positive fleet size.
type ErrConfiguration struct {
	Field   string      // Name of the offending configuration key, e.g. "fleet.size"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message explaining why the value is invalid
}

func (err *ErrConfiguration) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("invalid configuration: value %v is invalid for %q", err.Value, err.Field)
	}
	return fmt.Sprintf("invalid configuration: value %v is invalid for %q; %s", err.Value, err.Field, err.Message)
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the argument referred to, e.g., "maxSize"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message to include with the error message
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %v is invalid for argument %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %v is invalid for argument %q; %s", err.Value, err.Name, err.Message)
}

// ErrGeneration indicates that a generated reading fell outside the declared range of its metric kind.
// It is an internal invariant violation and only ever costs the affected data point.
type ErrGeneration struct {
	Kind  string
	Value float64
	Min   float64
	Max   float64
}

func (err *ErrGeneration) Error() string {
	return fmt.Sprintf("generated value %v for metric %q is outside declared range [%v, %v]", err.Value, err.Kind, err.Min, err.Max)
}

// ErrBatchSubmission is returned when the backend rejected, or could not be reached for, a single batch.
type ErrBatchSubmission struct {
	Namespace string
	Index     int // Position of the batch within its tick
	Size      int // Number of data points in the batch
	Cause     error
}

func (err *ErrBatchSubmission) Error() string {
	return fmt.Sprintf("failed to submit batch %d (%d points) to namespace %q: %v", err.Index, err.Size, err.Namespace, err.Cause)
}

func (err *ErrBatchSubmission) Unwrap() error {
	return err.Cause
}

// ErrTick wraps any failure that escaped a single phase of a publish tick, including recovered panics.
type ErrTick struct {
	Phase string
	Cause error
}

func (err *ErrTick) Error() string {
	return fmt.Sprintf("publish tick failed during %s: %v", err.Phase, err.Cause)
}

func (err *ErrTick) Unwrap() error {
	return err.Cause
}

// IsConfigurationError returns true if err, or any error it wraps, is an ErrConfiguration.
func IsConfigurationError(err error) bool {
	var e *ErrConfiguration
	return errors.As(err, &e)
}

// IsInvalidArgument returns true if err, or any error it wraps, is an ErrInvalidArgument.
func IsInvalidArgument(err error) bool {
	var e *ErrInvalidArgument
	return errors.As(err, &e)
}

// NewTickPanic converts a value recovered from a panic into an ErrTick.
func NewTickPanic(phase string, recovered interface{}) *ErrTick {
	if err, ok := recovered.(error); ok {
		return &ErrTick{Phase: phase, Cause: errors.WithStack(err)}
	}
	return &ErrTick{Phase: phase, Cause: errors.Errorf("panic: %v", recovered)}
}
