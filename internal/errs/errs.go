// Package errs defines the error taxonomy used across the pipeline
// (spec §7): a small set of kinds, not a type per failure site, so
// callers can branch with errors.As/errors.Is instead of string
// matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the taxonomy buckets from §7.
type Kind string

const (
	KindConfig        Kind = "config"
	KindTransport      Kind = "transport"
	KindProtocol       Kind = "protocol"
	KindMapping        Kind = "mapping"
	KindIdentity       Kind = "identity"
	KindStoreConflict  Kind = "store_conflict"
	KindStoreError     Kind = "store_error"
	KindCancellation   Kind = "cancellation"
)

// Error wraps an underlying cause with a Kind and a short, human
// readable context string (e.g. the provider or URL involved).
type Error struct {
	Kind    Kind
	Context string
	Err     error
}

func (e *Error) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Kind, e.Context, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, context string, err error) *Error {
	return &Error{Kind: kind, Context: context, Err: err}
}

func Config(context string, err error) *Error       { return newErr(KindConfig, context, err) }
func Transport(context string, err error) *Error     { return newErr(KindTransport, context, err) }
func Protocol(context string, err error) *Error      { return newErr(KindProtocol, context, err) }
func Mapping(context string, err error) *Error       { return newErr(KindMapping, context, err) }
func Identity(context string, err error) *Error      { return newErr(KindIdentity, context, err) }
func StoreConflict(context string, err error) *Error { return newErr(KindStoreConflict, context, err) }
func StoreError(context string, err error) *Error    { return newErr(KindStoreError, context, err) }
func Cancellation(context string, err error) *Error  { return newErr(KindCancellation, context, err) }

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// ErrMissingIdentity is returned by the store when neither identity key
// (website_domain, normalized_name) is present on an upsertCompany call.
var ErrMissingIdentity = errors.New("company has neither website_domain nor normalized_name")

// ErrNotFound is returned only on canonicalization updates targeting a
// row that does not exist (§4.7).
var ErrNotFound = errors.New("not found")

// ErrUniqueConstraint signals a unique-key conflict on a store write
// where the conflict itself is meaningful to the caller (discovery
// persistence, §4.9) rather than resolved by the store's own upsert
// semantics.
var ErrUniqueConstraint = errors.New("unique constraint violation")
