package repair

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound indicates the email does not resolve to a user in the realm.
	// Callers skip the user and carry on.
	ErrUserNotFound = errors.New("user not found")

	// ErrAmbiguousUser indicates an email matched users in several realms and no realm was given.
	ErrAmbiguousUser = errors.New("user is ambiguous without a realm")

	// ErrRealmNotFound indicates the realm selector does not match any realm.
	ErrRealmNotFound = errors.New("realm not found")

	// ErrUnknownChannel indicates a mute rule names a stream that no longer exists in the realm.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrAmbiguousChannel indicates a mute rule's stream name matches several streams case-insensitively.
	ErrAmbiguousChannel = errors.New("ambiguous channel")

	// ErrMalformedMuteList indicates the stored mute list is not a list of [stream, topic] pairs.
	ErrMalformedMuteList = errors.New("malformed mute list")
)

// StoreError wraps a query or connection failure against the message store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// IsSkippable reports whether err only means the user could not be resolved,
// which a multi-user run logs and skips.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrAmbiguousUser)
}
