package schema

import (
	"errors"
	"fmt"
)

// Domain errors for the schema package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, schema.ErrMissingType) {
//	    // handle missing <type> annotation
//	}
var (
	// ErrMissingType is returned when an attribute column lacks a <type> annotation.
	ErrMissingType = errors.New("schema: attribute lacks a <type> annotation")

	// ErrUnknownType is returned when a type token is not in the recognised set.
	ErrUnknownType = errors.New("schema: unrecognised type token")

	// ErrEmptyObjectID is returned when the object identifier segment is present but empty.
	ErrEmptyObjectID = errors.New("schema: empty object identifier")

	// ErrEmptyName is returned when an attribute name is empty.
	ErrEmptyName = errors.New("schema: empty attribute name")

	// ErrDuplicateAttribute is returned when two columns declare the same attribute name.
	ErrDuplicateAttribute = errors.New("schema: duplicate attribute name")

	// ErrNoIdentity is returned when a header defines neither an entityID nor an apiKey column.
	ErrNoIdentity = errors.New("schema: header needs an entityID or apiKey column")

	// ErrNoEntityType is returned when a header lacks the entityType column.
	ErrNoEntityType = errors.New("schema: header needs an entityType column")

	// ErrEmptyHeader is returned when the header row has no cells.
	ErrEmptyHeader = errors.New("schema: empty header row")

	// ErrUnterminatedFormula is returned when a "${" has no matching "}".
	ErrUnterminatedFormula = errors.New("schema: unterminated formula")

	// ErrEmptyFormula is returned when a formula body is empty.
	ErrEmptyFormula = errors.New("schema: empty formula body")

	// ErrMalformedExpression is returned when a formula body is not a valid
	// arithmetic expression.
	ErrMalformedExpression = errors.New("schema: malformed formula expression")
)

// SchemaError reports a defective header cell. It indicates a configuration
// defect, not a transient condition: processing of the whole file aborts.
type SchemaError struct {
	Column int    // zero-based column index
	Cell   string // raw header cell text
	Err    error  // one of the sentinel errors above
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("column %d (%q): %v", e.Column, e.Cell, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// FormulaError reports a malformed "${...}" expression, naming the offending
// attribute and the raw text.
type FormulaError struct {
	Attribute string
	Raw       string
	Err       error
}

func (e *FormulaError) Error() string {
	return fmt.Sprintf("attribute %q formula %q: %v", e.Attribute, e.Raw, e.Err)
}

func (e *FormulaError) Unwrap() error { return e.Err }
