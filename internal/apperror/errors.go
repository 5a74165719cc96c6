// Package apperror defines the failure kinds surfaced to callers of the workflow services.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthorization
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	}
	return "internal"
}

// Error is a user-actionable failure. Code identifies the specific condition.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches another *Error by code, or by kind when the target has no code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return t.Code == e.Code
	}
	return t.Kind == e.Kind
}

// Kind sentinels, usable with errors.Is.
var (
	ErrValidation    = &Error{Kind: KindValidation, Message: "validation error"}
	ErrAuthorization = &Error{Kind: KindAuthorization, Message: "not authorized"}
	ErrConflict      = &Error{Kind: KindConflict, Message: "conflict"}
	ErrNotFound      = &Error{Kind: KindNotFound, Message: "not found"}
)

var (
	ErrRequestNotFound  = New(KindNotFound, "REQUEST_NOT_FOUND", "purchase request not found")
	ErrDocumentNotFound = New(KindNotFound, "DOCUMENT_NOT_FOUND", "document not found")

	ErrInvalidInput      = New(KindValidation, "INVALID_INPUT", "invalid input")
	ErrTitleRequired     = New(KindValidation, "TITLE_REQUIRED", "title is required")
	ErrDescriptionNeeded = New(KindValidation, "DESCRIPTION_REQUIRED", "description is required")
	ErrInvalidAmount     = New(KindValidation, "INVALID_AMOUNT", "amount must be a positive number")
	ErrReasonRequired    = New(KindValidation, "REASON_REQUIRED", "a reason is required to reject a request")
	ErrUnsupportedFile   = New(KindValidation, "UNSUPPORTED_FILE", "unsupported file type")
	ErrFileTooLarge      = New(KindValidation, "FILE_TOO_LARGE", "file is too large")
	ErrEmptyFile         = New(KindValidation, "EMPTY_FILE", "file is empty")

	ErrCannotCreate = New(KindAuthorization, "CANNOT_CREATE", "only staff can create purchase requests")
	ErrNotOwner     = New(KindAuthorization, "NOT_OWNER", "only the creator can modify this request")
	ErrNotApprover  = New(KindAuthorization, "NOT_APPROVER", "only approvers can decide on requests")

	ErrNotPending     = New(KindConflict, "NOT_PENDING", "request is no longer pending")
	ErrAlreadyDecided = New(KindConflict, "ALREADY_DECIDED", "approver has already decided on this request")
	ErrLevelDecided   = New(KindConflict, "LEVEL_DECIDED", "this approval level has already decided on this request")
	ErrNotApproved    = New(KindConflict, "NOT_APPROVED", "request is not approved")
	ErrReceiptExists  = New(KindConflict, "RECEIPT_EXISTS", "a receipt was already submitted for this request")
)

// Wrap attaches detail to a sentinel while keeping it matchable.
func Wrap(sentinel *Error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
