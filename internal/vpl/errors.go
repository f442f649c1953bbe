package vpl

import (
	"fmt"

	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// UnknownOperationError reports a pipeline referencing an operation name
// the registry does not know.
type UnknownOperationError struct {
	Name      string
	Line, Col int
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("vpl: unknown operation %q at %d:%d", e.Name, e.Line, e.Col)
}

func (e *UnknownOperationError) Unwrap() error {
	return xerrors.New(xerrors.Parse, e.Error())
}

// MissingRequiredParameterError reports an operation missing a parameter
// its registered spec requires.
type MissingRequiredParameterError struct {
	Operation string
	Param     string
	Line, Col int
}

func (e *MissingRequiredParameterError) Error() string {
	return fmt.Sprintf("vpl: operation %q at %d:%d missing required parameter %q", e.Operation, e.Line, e.Col, e.Param)
}

func (e *MissingRequiredParameterError) Unwrap() error {
	return xerrors.New(xerrors.Parse, e.Error())
}

// InvalidParameterValueError reports a parameter value of the wrong shape
// (e.g. a string where the operation requires a number).
type InvalidParameterValueError struct {
	Operation string
	Param     string
	Value     Value
	Line, Col int
}

func (e *InvalidParameterValueError) Error() string {
	return fmt.Sprintf("vpl: operation %q at %d:%d parameter %q has invalid value %v", e.Operation, e.Line, e.Col, e.Param, e.Value)
}

func (e *InvalidParameterValueError) Unwrap() error {
	return xerrors.New(xerrors.Parse, e.Error())
}

// UnknownParameterError reports a parameter key not declared by an
// operation's spec.
type UnknownParameterError struct {
	Operation string
	Param     string
	Line, Col int
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("vpl: operation %q at %d:%d has unknown parameter %q", e.Operation, e.Line, e.Col, e.Param)
}

func (e *UnknownParameterError) Unwrap() error {
	return xerrors.New(xerrors.Parse, e.Error())
}

// WrongSourceCountError reports a source_list whose length falls outside
// an operation's registered arity.
type WrongSourceCountError struct {
	Operation string
	Got       int
	Arity     SourceArity
	Line, Col int
}

func (e *WrongSourceCountError) Error() string {
	return fmt.Sprintf("vpl: operation %q at %d:%d expects %s, got %d", e.Operation, e.Line, e.Col, describeArity(e.Arity), e.Got)
}

func (e *WrongSourceCountError) Unwrap() error {
	return xerrors.New(xerrors.Parse, e.Error())
}
