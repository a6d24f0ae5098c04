package claim

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

// Failure kinds. The zero value is KindInternal so that an unclassified
// error is never mistaken for a client error.
const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Error is returned by every Service operation. Message is safe to show to
// the caller; Err, if set, is the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound returns a KindNotFound error.
func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

// Forbidden returns a KindForbidden error.
func Forbidden(msg string) *Error { return &Error{Kind: KindForbidden, Message: msg} }

// Conflict returns a KindConflict error.
func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }

// Validation returns a KindValidation error.
func Validation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }

// Internal wraps err as a KindInternal error.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the Kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Messages shared by several operations.
const (
	MsgItemNotFound     = "item not found"
	MsgItemUnavailable  = "item no longer available"
	MsgRequestNotFound  = "request not found"
	MsgAlreadyProcessed = "already processed"
	MsgAlreadyRequested = "already requested"
	MsgOwnItemRequest   = "cannot request own item"
	MsgOwnItemClaim     = "cannot claim own item"
	MsgNotRequestOwner  = "can only manage requests for your own items"
	MsgNotItemOwner     = "not authorized to update this item"
	MsgInvalidStatus    = "invalid status"
)
