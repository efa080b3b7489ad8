package packet

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInvalidFormat Kind = iota + 1
	KindInvalidLength
	KindOutOfRange
)

func (k Kind) String() string {
	switch k {
	case KindInvalidFormat:
		return "InvalidFormat"
	case KindInvalidLength:
		return "InvalidLength"
	case KindOutOfRange:
		return "OutOfRange"
	default:
		return "Unknown"
	}
}

// Violation is a single value outside its allowed range.
type Violation struct {
	Field string
	Value float64
	Range Range
}

func (v Violation) String() string {
	return fmt.Sprintf("%s=%g not in [%g, %g]", v.Field, v.Value, v.Range.Min, v.Range.Max)
}

// Error is returned for every payload the decoder rejects.
type Error struct {
	Kind       Kind
	Msg        string
	Violations []Violation
}

func (e *Error) Error() string {
	return e.Msg
}

// Is matches the sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Msg == "" && t.Kind == e.Kind
}

//nolint:gochecknoglobals
var (
	ErrInvalidFormat = &Error{Kind: KindInvalidFormat}
	ErrInvalidLength = &Error{Kind: KindInvalidLength}
	ErrOutOfRange    = &Error{Kind: KindOutOfRange}
)

// KindOf returns the decode error kind carried by err, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return 0
}
