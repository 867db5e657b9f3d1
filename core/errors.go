package core

import "errors"

// Kind classifies an error the way the event loop needs to route it to a
// wire error value (spec §7). It is never used for string matching.
type Kind uint8

const (
	// KindValidation covers rejected-but-well-formed requests: bad owner,
	// duplicate data, disallowed operation. Never fatal.
	KindValidation Kind = iota + 1
	// KindLookup covers "doesn't exist" conditions, including idempotent
	// deletes that found nothing.
	KindLookup
	// KindResource covers capacity and I/O failures.
	KindResource
	// KindProtocol covers malformed messages and unexpected state
	// transitions the sender should retransmit or be told about.
	KindProtocol
	// KindInternal covers invariant violations and unreachable cases; the
	// event is dropped and the node keeps running.
	KindInternal
)

// KindedError pairs a sentinel error with its Kind so the event loop can
// pick the right wire error value without string matching.
type KindedError struct {
	Err  error
	Kind Kind
}

func (e *KindedError) Error() string { return e.Err.Error() }
func (e *KindedError) Unwrap() error { return e.Err }

func kinded(k Kind, err error) *KindedError { return &KindedError{Err: err, Kind: k} }

// Sentinel errors, one per wire error value in spec §6.
var (
	ErrNoSuchData       = errors.New("no such data")
	ErrDataExists       = errors.New("data exists")
	ErrInvalidOwners    = errors.New("invalid owners")
	ErrFailedToDelete   = errors.New("failed to delete")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrNoSuchKey        = errors.New("no such key")
	ErrSerialization    = errors.New("serialization error")
	ErrOutOfSpace       = errors.New("out of space")
	ErrIOFailure        = errors.New("io failure")
	ErrInvalidClaim     = errors.New("invalid claim")
	ErrNoSuchAccount    = errors.New("no such account")
)

// errNoSuchData etc. pair each sentinel above with its Kind so callers that
// need it (the event loop) can recover it via errors.As on *KindedError.
var (
	errNoSuchData       = kinded(KindLookup, ErrNoSuchData)
	errDataExists       = kinded(KindValidation, ErrDataExists)
	errInvalidOwners    = kinded(KindValidation, ErrInvalidOwners)
	errFailedToDelete   = kinded(KindResource, ErrFailedToDelete)
	errInvalidOperation = kinded(KindValidation, ErrInvalidOperation)
	errNoSuchKey        = kinded(KindLookup, ErrNoSuchKey)
	errSerialization    = kinded(KindProtocol, ErrSerialization)
	errOutOfSpace       = kinded(KindResource, ErrOutOfSpace)
	errIOFailure        = kinded(KindResource, ErrIOFailure)
	errInvalidClaim     = kinded(KindValidation, ErrInvalidClaim)
	errNoSuchAccount    = kinded(KindLookup, ErrNoSuchAccount)
)
