package eventstore

import (
	"git.home.luguber.info/inful/progan/internal/foundation/errors"
)

// Sentinel errors for journal operations; match them with errors.Is.
var (
	ErrDatabaseOpenFailed      = errors.EventStoreError("could not open event store database").Build()
	ErrInitializeSchemaFailed  = errors.EventStoreError("failed to initialize event store schema").Build()
	ErrEventAppendFailed       = errors.EventStoreError("failed to append event to store").Build()
	ErrEventQueryFailed        = errors.EventStoreError("failed to query events from store").Build()
	ErrEventScanFailed         = errors.EventStoreError("failed to scan event rows").Build()
	ErrMarshalPayloadFailed    = errors.EventStoreError("failed to marshal event payload").Build()
	ErrUnmarshalPayloadFailed  = errors.EventStoreError("failed to unmarshal event payload").Build()
	ErrProjectionRebuildFailed = errors.EventStoreError("failed to rebuild projection").Build()
)

// wrap attaches cause to a sentinel so both errors.Is and the cause chain keep working.
func wrap(sentinel *errors.ClassifiedError, cause error) error {
	return errors.WrapError(cause, sentinel.Category(), sentinel.Message()).Build()
}
