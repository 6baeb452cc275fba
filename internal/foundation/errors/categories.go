package errors

import "maps"

// ErrorCategory is the broad area of the trainer an error originated from.
type ErrorCategory string

const (
	// User input and configuration.
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not_found"

	// Scheduling and network structure.
	CategorySchedule ErrorCategory = "schedule"
	CategoryGrowth   ErrorCategory = "growth"
	CategoryControl  ErrorCategory = "control"

	// Durable state.
	CategoryCheckpoint ErrorCategory = "checkpoint"
	CategoryResume     ErrorCategory = "resume"
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryEventStore ErrorCategory = "eventstore"

	// Training and runtime.
	CategoryTraining ErrorCategory = "training"
	CategoryNotify   ErrorCategory = "notify"
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates whether the run can continue.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // stops the run
	SeverityError   ErrorSeverity = "error"   // fails the current operation
	SeverityWarning ErrorSeverity = "warning" // degraded, run continues
	SeverityInfo    ErrorSeverity = "info"
)

// RetryStrategy says how a caller should treat a repeat attempt.
type RetryStrategy string

const (
	RetryNever      RetryStrategy = "never"
	RetryImmediate  RetryStrategy = "immediate"
	RetryBackoff    RetryStrategy = "backoff"
	RetryNextTick   RetryStrategy = "next_tick" // retry at the next eligible tick boundary
	RetryUserAction RetryStrategy = "user"
)

// ErrorContext holds structured key/value context attached to an error.
type ErrorContext map[string]any

// Set adds or replaces a value, allocating the map on first use.
func (c ErrorContext) Set(key string, value any) ErrorContext {
	if c == nil {
		c = make(ErrorContext)
	}
	c[key] = value
	return c
}

// Get looks up a context value.
func (c ErrorContext) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c[key]
	return v, ok
}

// GetString looks up a string context value.
func (c ErrorContext) GetString(key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Merge returns a new context with other taking precedence.
func (c ErrorContext) Merge(other ErrorContext) ErrorContext {
	if c == nil {
		return other
	}
	if other == nil {
		return c
	}
	out := make(ErrorContext, len(c)+len(other))
	maps.Copy(out, c)
	maps.Copy(out, other)
	return out
}
