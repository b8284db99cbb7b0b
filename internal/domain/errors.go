package domain

import (
	"errors"
	"fmt"
)

// Outcome classes. Every error leaving the engine wraps exactly one.
var (
	ErrValidation    = errors.New("validation failed")
	ErrAuth          = errors.New("identity resolution failed")
	ErrConflict      = errors.New("conflict")
	ErrNotFound      = errors.New("not found")
	ErrStore         = errors.New("store failure")
	ErrUnimplemented = errors.New("not implemented")
)

var (
	ErrMemberAttached   = fmt.Errorf("%w: client already belongs to a session", ErrConflict)
	ErrNotHost          = fmt.Errorf("%w: client is not the session host", ErrConflict)
	ErrConcurrentUpdate = fmt.Errorf("%w: session changed concurrently", ErrConflict)
	ErrSessionNotFound  = fmt.Errorf("%w: session", ErrNotFound)
	ErrMemberNotFound   = fmt.Errorf("%w: client is not in a session", ErrNotFound)

	ErrProviderNotImplemented = fmt.Errorf("%w: Apple Music integration not yet implemented", ErrUnimplemented)
)

var kinds = []error{ErrValidation, ErrAuth, ErrConflict, ErrNotFound, ErrUnimplemented, ErrStore}

// Kind returns the outcome class err belongs to. Errors that wrap none of
// the classes are treated as store failures.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrStore
}

// StoreError wraps an infrastructure failure so it classifies as ErrStore
// while keeping the cause reachable through errors.Is/As.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if k := Kind(err); k != ErrStore || errors.Is(err, ErrStore) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
