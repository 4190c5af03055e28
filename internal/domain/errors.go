package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSlotNotFound        = errors.New("signature slot not found")
	ErrActorRequired       = errors.New("acting identifier is required")
	ErrUnknownDocumentType = errors.New("unknown document type")
)

type ErrorKind string

const (
	KindEmptyDocument      ErrorKind = "empty_document"
	KindOrdering           ErrorKind = "ordering"
	KindMissingSigner      ErrorKind = "missing_signer"
	KindStructuralMismatch ErrorKind = "structural_mismatch"
)

// ValidationError is implemented only by the four validation failures below.
type ValidationError interface {
	error
	Kind() ErrorKind
	validationError()
}

type EmptyDocumentError struct {
	DocumentType DocumentType
}

func (e *EmptyDocumentError) Error() string {
	return fmt.Sprintf("%s: signatures list cannot be empty", e.DocumentType)
}

func (e *EmptyDocumentError) Kind() ErrorKind  { return KindEmptyDocument }
func (e *EmptyDocumentError) validationError() {}

// OrderingError reports the first slot whose position does not exceed the
// position stored before it.
type OrderingError struct {
	Index    int
	Position int
	Previous int
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("signatures must be in ascending slot order: position %d at index %d follows %d", e.Position, e.Index, e.Previous)
}

func (e *OrderingError) Kind() ErrorKind  { return KindOrdering }
func (e *OrderingError) validationError() {}

type MissingSignerError struct {
	Position int
	Role     Role
}

func (e *MissingSignerError) Error() string {
	return fmt.Sprintf("required signature in slot %d (%s) must have a signer", e.Position, e.Role)
}

func (e *MissingSignerError) Kind() ErrorKind  { return KindMissingSigner }
func (e *MissingSignerError) validationError() {}

// StructuralMismatchError names the template rule that failed. Position and
// Role are zero when the rule concerns the whole document.
type StructuralMismatchError struct {
	DocumentType DocumentType
	Rule         string
	Position     int
	Role         Role
}

func (e *StructuralMismatchError) Error() string {
	if e.Position == 0 {
		return fmt.Sprintf("%s: rule %s failed", e.DocumentType, e.Rule)
	}
	return fmt.Sprintf("%s: rule %s failed at slot %d (role %q)", e.DocumentType, e.Rule, e.Position, e.Role)
}

func (e *StructuralMismatchError) Kind() ErrorKind  { return KindStructuralMismatch }
func (e *StructuralMismatchError) validationError() {}

// KindOf unwraps err looking for a validation failure.
func KindOf(err error) (ErrorKind, bool) {
	var v ValidationError
	if errors.As(err, &v) {
		return v.Kind(), true
	}
	return "", false
}
