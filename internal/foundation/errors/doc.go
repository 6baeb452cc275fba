// Package errors provides the classified error primitives used across progan.
//
// Every failure that crosses a package boundary is expressed as a ClassifiedError
// carrying a category (what part of the trainer failed), a severity (whether the
// run can continue) and a retry strategy (whether trying again later makes sense).
//
// Example usage:
//
//	err := errors.CheckpointError("write discriminator state").
//		WithCause(ioErr).
//		WithContext("path", path).
//		WithContext("tick", tick).
//		Build()
//
// The CLIErrorAdapter turns these into exit codes and user-facing messages.
package errors
