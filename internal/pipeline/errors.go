package pipeline

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindStage
	KindInternal
)

const (
	CodeValidation        = "validation_error"
	CodeNotFound          = "budget_not_found"
	CodeDraftMissing      = "draft_missing"
	CodePartialMissing    = "partial_missing"
	CodeModelNotReady     = "model_not_ready"
	CodeAnswersIncomplete = "answers_incomplete"
	CodeInternal          = "internal_error"
)

// Error is the only error type pipeline operations return. Details is safe to
// show to the caller; Err keeps the cause for logs.
type Error struct {
	Kind    Kind
	Code    string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Details, e.Err)
	}
	return e.Code + ": " + e.Details
}

func (e *Error) Unwrap() error { return e.Err }

// AsError извлекает ошибку конвейера; прочие ошибки считаются внутренними.
func AsError(err error) *Error {
	var pipelineErr *Error
	if errors.As(err, &pipelineErr) {
		return pipelineErr
	}
	return internal(err)
}

func validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Details: fmt.Sprintf(format, args...)}
}

func notFound(id string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Details: fmt.Sprintf("budget %s not found", id)}
}

func stage(code, details string) *Error {
	return &Error{Kind: KindStage, Code: code, Details: details}
}

func internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Details: "internal server error", Err: err}
}
