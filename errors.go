package dokki

import (
	"errors"
	"fmt"

	"github.com/drpcorg/dokki/rdx"
)

var (
	ErrMalformed          = errors.New("dokki: malformed change")
	ErrHashMismatch       = errors.New("dokki: change hash mismatch")
	ErrUnsupportedVersion = errors.New("dokki: unsupported change format version")

	ErrNoActor   = errors.New("dokki: read-only replica (no actor id)")
	ErrTxnClosed = errors.New("dokki: transaction already committed or discarded")
	ErrEmptyKey  = errors.New("dokki: empty key")
	ErrBadUpdate = errors.New("dokki: bad update blob")
)

// ClockError is a counter that does not directly follow the actor's last one.
type ClockError struct {
	Actor    rdx.ActorID
	Expected uint64
	Got      uint64
}

func (e *ClockError) Error() string {
	return fmt.Sprintf("dokki: counter gap for %s: expected %d, got %d",
		e.Actor.Short(), e.Expected, e.Got)
}

// CausalityError is an op depending on an op the log does not have.
type CausalityError struct {
	Op      rdx.OpID
	Missing rdx.OpID
}

func (e *CausalityError) Error() string {
	return fmt.Sprintf("dokki: %s depends on unknown %s", e.Op, e.Missing)
}

// EncodingError is an op run that cannot be laid out as changes.
type EncodingError struct {
	Op     rdx.OpID
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("dokki: can not encode %s: %s", e.Op, e.Reason)
}

type DecodeErrorKind int

const (
	Malformed DecodeErrorKind = iota + 1
	HashMismatch
	UnsupportedVersion
)

func (k DecodeErrorKind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case HashMismatch:
		return "hash mismatch"
	case UnsupportedVersion:
		return "unsupported version"
	}
	return "unknown"
}

type DecodeError struct {
	Kind   DecodeErrorKind
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return "dokki: decode: " + e.Kind.String()
	}
	return "dokki: decode: " + e.Kind.String() + ": " + e.Detail
}

// Unwrap makes errors.Is(err, ErrHashMismatch) and friends work.
func (e *DecodeError) Unwrap() error {
	switch e.Kind {
	case Malformed:
		return ErrMalformed
	case HashMismatch:
		return ErrHashMismatch
	case UnsupportedVersion:
		return ErrUnsupportedVersion
	}
	return nil
}

func malformed(format string, args ...any) *DecodeError {
	return &DecodeError{Kind: Malformed, Detail: fmt.Sprintf(format, args...)}
}

// MissingDependencyError reports a buffered change given up on: it was
// evicted, timed out or dropped while still waiting for Missing.
type MissingDependencyError struct {
	Change  [32]byte
	Missing rdx.OpID
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("dokki: change %x never got its dependency %s",
		e.Change[:6], e.Missing)
}
