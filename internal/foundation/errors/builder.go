package errors

// ErrorBuilder is the fluent constructor for ClassifiedError values.
type ErrorBuilder struct {
	category ErrorCategory
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	context  ErrorContext
}

// NewError starts a builder with error severity and no retry.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{
		category: category,
		severity: SeverityError,
		retry:    RetryNever,
		message:  message,
		context:  make(ErrorContext),
	}
}

// WrapError starts a builder around an existing error.
func WrapError(err error, category ErrorCategory, message string) *ErrorBuilder {
	return NewError(category, message).WithCause(err)
}

func (b *ErrorBuilder) WithSeverity(s ErrorSeverity) *ErrorBuilder { b.severity = s; return b }
func (b *ErrorBuilder) WithRetry(r RetryStrategy) *ErrorBuilder    { b.retry = r; return b }
func (b *ErrorBuilder) WithCause(err error) *ErrorBuilder          { b.cause = err; return b }

func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.context = b.context.Set(key, value)
	return b
}

func (b *ErrorBuilder) Fatal() *ErrorBuilder      { return b.WithSeverity(SeverityFatal) }
func (b *ErrorBuilder) Warning() *ErrorBuilder    { return b.WithSeverity(SeverityWarning) }
func (b *ErrorBuilder) Retryable() *ErrorBuilder  { return b.WithRetry(RetryBackoff) }
func (b *ErrorBuilder) NextTick() *ErrorBuilder   { return b.WithRetry(RetryNextTick) }
func (b *ErrorBuilder) UserAction() *ErrorBuilder { return b.WithRetry(RetryUserAction) }

// Build returns the ClassifiedError.
func (b *ErrorBuilder) Build() *ClassifiedError {
	return &ClassifiedError{
		category: b.category,
		severity: b.severity,
		retry:    b.retry,
		message:  b.message,
		cause:    b.cause,
		context:  b.context,
	}
}

// Convenience constructors, one per category, carrying that category's usual severity and retry.

func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal().UserAction()
}

func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message).Fatal().UserAction()
}

func NotFoundError(message string) *ErrorBuilder {
	return NewError(CategoryNotFound, message)
}

func ScheduleError(message string) *ErrorBuilder {
	return NewError(CategorySchedule, message).Fatal()
}

func GrowthError(message string) *ErrorBuilder {
	return NewError(CategoryGrowth, message).Fatal()
}

func ControlError(message string) *ErrorBuilder {
	return NewError(CategoryControl, message).Warning()
}

func CheckpointError(message string) *ErrorBuilder {
	return NewError(CategoryCheckpoint, message).NextTick()
}

func ResumeError(message string) *ErrorBuilder {
	return NewError(CategoryResume, message).Fatal().UserAction()
}

func FileSystemError(message string) *ErrorBuilder {
	return NewError(CategoryFileSystem, message).Retryable()
}

func EventStoreError(message string) *ErrorBuilder {
	return NewError(CategoryEventStore, message)
}

func TrainingError(message string) *ErrorBuilder {
	return NewError(CategoryTraining, message)
}

func NotifyError(message string) *ErrorBuilder {
	return NewError(CategoryNotify, message).Warning().Retryable()
}

func RuntimeError(message string) *ErrorBuilder {
	return NewError(CategoryRuntime, message).Fatal()
}

func InternalError(message string) *ErrorBuilder {
	return NewError(CategoryInternal, message).Fatal()
}
