package keystore

import (
	"errors"
	"fmt"
)

// Kind classifies keystore failures. The set is closed.
type Kind string

const (
	KindKeyNotFound     Kind = "KeyNotFoundError"
	KindWrongPassword   Kind = "WrongPasswordError"
	KindInvalidArgument Kind = "InvalidArgumentError"
	KindPersistence     Kind = "PersistenceError"
	// KindInternal is only produced when a wire error carries an unknown kind.
	KindInternal Kind = "InternalError"
)

// Sentinels for errors.Is matching on the kind of a *Error.
var (
	ErrKeyNotFound     = &Error{Kind: KindKeyNotFound}
	ErrWrongPassword   = &Error{Kind: KindWrongPassword}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrPersistence     = &Error{Kind: KindPersistence}
)

// Error is returned by every keystore operation that fails.
// Messages never contain passwords or decrypted data.
type Error struct {
	Kind   Kind
	KeyID  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindKeyNotFound:
		msg = fmt.Sprintf("key %q not found", e.KeyID)
	case KindWrongPassword:
		msg = "wrong password"
	case KindInvalidArgument:
		msg = "invalid argument"
	case KindPersistence:
		msg = "failed to persist keystore"
	default:
		msg = "keystore error"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of err, or "" if err is not a keystore error.
func KindOf(err error) Kind {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Kind
	}
	return ""
}

func errKeyNotFound(keyID string) error {
	return &Error{Kind: KindKeyNotFound, KeyID: keyID}
}

func errWrongPassword(keyID string) error {
	return &Error{Kind: KindWrongPassword, KeyID: keyID}
}

func errInvalidArgument(keyID, reason string) error {
	return &Error{Kind: KindInvalidArgument, KeyID: keyID, Reason: reason}
}

func errPersistence(err error) error {
	return &Error{Kind: KindPersistence, Err: err}
}

// WireError is the serialized form of an error crossing a process boundary.
type WireError struct {
	Kind    Kind   `json:"kind"`
	Name    string `json:"name"`
	Message string `json:"message"`
	KeyID   string `json:"keyId,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// ToWire converts err into its wire form. Non-keystore errors become KindInternal
// with a generic message so that foreign error text is not forwarded.
func ToWire(err error) *WireError {
	if err == nil {
		return nil
	}
	var kerr *Error
	if !errors.As(err, &kerr) {
		return &WireError{Kind: KindInternal, Name: string(KindInternal), Message: "internal error"}
	}
	w := &WireError{
		Kind:    kerr.Kind,
		Name:    string(kerr.Kind),
		Message: kerr.Error(),
		KeyID:   kerr.KeyID,
		Detail:  kerr.Reason,
	}
	if kerr.Err != nil {
		if w.Detail != "" {
			w.Detail += ": "
		}
		w.Detail += kerr.Err.Error()
	}
	return w
}

// FromWire reconstructs a local *Error from its wire form.
func FromWire(w *WireError) error {
	if w == nil {
		return nil
	}
	kind := w.Kind
	switch kind {
	case KindKeyNotFound, KindWrongPassword, KindInvalidArgument, KindPersistence:
	default:
		kind = KindInternal
	}
	e := &Error{Kind: kind, KeyID: w.KeyID, Reason: w.Detail}
	if kind == KindInternal && e.Reason == "" {
		e.Reason = w.Message
	}
	return e
}
