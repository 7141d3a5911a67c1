package service

import (
	"errors"
	"fmt"
)

var (
	ErrSessionActive = errors.New("recording session already active")
	ErrNoSession     = errors.New("no recording session running")
)

// Kind classifies session errors for callers
type Kind string

const (
	KindValidation    Kind = "validation"
	KindHardwareStart Kind = "hardware_start"
	KindHardwarePoll  Kind = "hardware_poll"
	KindEmptyCapture  Kind = "empty_capture"
	KindPersistence   Kind = "persistence"
	KindSessionActive Kind = "session_active"
)

// Error is a session error with a user readable message
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or "" when err is not a session error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
