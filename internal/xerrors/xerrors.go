// Package xerrors implements the error taxonomy of spec.md §7: a small set
// of sentinel kinds that wrap normally with fmt.Errorf("...: %w", err) and
// unwrap normally with errors.Is, matching the teacher's plain wrap/unwrap
// idiom rather than introducing a dedicated error-handling library.
package xerrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and user-surface mapping.
type Kind int

const (
	Internal Kind = iota
	Parse
	NotFound
	FormatMismatch
	Io
	Range
	OutOfOrder
	Cancelled
	Timeout
	Unsupported
)

func (k Kind) String() string {
	switch k {
	case Parse:
		return "parse"
	case NotFound:
		return "not_found"
	case FormatMismatch:
		return "format_mismatch"
	case Io:
		return "io"
	case Range:
		return "range"
	case OutOfOrder:
		return "out_of_order"
	case Cancelled:
		return "cancelled"
	case Timeout:
		return "timeout"
	case Unsupported:
		return "unsupported"
	default:
		return "internal"
	}
}

// kindError is the sentinel carrying a Kind; New/Wrap attach it via %w so
// errors.Is(err, kindSentinel(k)) and As keep working through wraps.
type kindError struct {
	kind Kind
}

func (e *kindError) Error() string { return e.kind.String() }

var sentinels = map[Kind]*kindError{
	Internal:       {Internal},
	Parse:          {Parse},
	NotFound:       {NotFound},
	FormatMismatch: {FormatMismatch},
	Io:             {Io},
	Range:          {Range},
	OutOfOrder:     {OutOfOrder},
	Cancelled:      {Cancelled},
	Timeout:        {Timeout},
	Unsupported:    {Unsupported},
}

// New creates an error of the given kind with a message.
func New(k Kind, msg string) error {
	return fmt.Errorf("%s: %w", msg, sentinels[k])
}

// Wrap attaches a kind to an existing error, preserving the chain.
func Wrap(k Kind, msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, sentinels[k], err)
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, k Kind) bool {
	return errors.Is(err, sentinels[k])
}

// IsRetryable reports whether a Kind's failures may succeed on retry
// (§7: "transient subset is retryable").
func IsRetryable(k Kind) bool {
	return k == Io || k == Timeout
}
