package entity

import "errors"

// Domain errors for the entity package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, entity.ErrMissingIdentity) {
//	    // handle row without entityID or apiKey
//	}
var (
	// ErrMissingEntityType is returned when a row's entityType cell is empty.
	ErrMissingEntityType = errors.New("entity: entityType value must not be empty")

	// ErrMissingIdentity is returned when a row sets neither entityID nor apiKey.
	ErrMissingIdentity = errors.New("entity: row needs an entityID or apiKey value")

	// ErrAmbiguousIdentity is returned when a row sets both entityID and apiKey.
	ErrAmbiguousIdentity = errors.New("entity: row must set only one of entityID or apiKey")

	// ErrInvalidEntityName is returned when an entity name contains whitespace.
	ErrInvalidEntityName = errors.New("entity: entity name must not contain spaces")

	// ErrInvalidProtocolList is returned when a group protocol list cannot be parsed.
	ErrInvalidProtocolList = errors.New("entity: invalid protocol list")

	// ErrConflictingClass is returned when a direct entity carries device-mapped
	// or computed attributes. The classifier prevents this; the router checks
	// defensively before dispatch.
	ErrConflictingClass = errors.New("entity: direct entity carries device attributes")

	// ErrUnknownKind is returned when routing an unrecognised entity kind.
	ErrUnknownKind = errors.New("entity: unknown entity kind")
)
