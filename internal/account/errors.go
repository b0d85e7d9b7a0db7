package account

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("account not found")
	ErrNotWaiting    = errors.New("account is not waiting for approval")
	ErrNoAdmins      = errors.New("no active administrators")
	ErrNoMailingList = errors.New("class year has no mailing list")
)

// FieldError is a single field-tagged validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every failed check of a candidate account.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+" "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether field failed with message.
func (v ValidationErrors) Has(field, message string) bool {
	for _, fe := range v {
		if fe.Field == field && fe.Message == message {
			return true
		}
	}
	return false
}

func (v *ValidationErrors) add(field, message string) {
	*v = append(*v, FieldError{Field: field, Message: message})
}

// merge appends the errors of other for fields v does not report yet.
func (v *ValidationErrors) merge(other ValidationErrors) {
	reported := make(map[string]bool, len(*v))
	for _, fe := range *v {
		reported[fe.Field] = true
	}
	for _, fe := range other {
		if !reported[fe.Field] {
			*v = append(*v, fe)
		}
	}
}

// PreconditionError means a token was requested before it was generated.
type PreconditionError struct {
	Field string
}

func (e *PreconditionError) Error() string {
	return e.Field + " is not generated"
}

// ExternalServiceError wraps a failed call to the mailer or the
// mailing-list service. The account it concerns stays persisted.
type ExternalServiceError struct {
	Op  string
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }
