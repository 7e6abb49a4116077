package entity

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wastetwin/provision-core/internal/schema"
)

// Builder turns data rows into provisioning records against a parsed schema.
//
// The schema is parsed and validated once per file; Build is then a pure
// per-row function. No state is shared between rows.
type Builder struct {
	schema          *schema.Schema
	defaultProtocol string
}

// NewBuilder creates a Builder for one descriptor file.
//
// Parameters:
//   - s: the file's parsed schema
//   - defaultProtocol: protocol for rows without a protocol cell
func NewBuilder(s *schema.Schema, defaultProtocol string) *Builder {
	return &Builder{schema: s, defaultProtocol: defaultProtocol}
}

// SchemaKind reports the routing class implied by the schema alone: one
// object-id column makes every row of the file device-managed. Rows can
// still upgrade to DeviceManaged through formula cells, never downgrade.
func (b *Builder) SchemaKind() Kind {
	if b.schema.DeviceManaged() {
		return DeviceManaged
	}
	return DirectEntity
}

// Record is the result of building one row: exactly one of Entity or Group
// is set. A record lives for the duration of its provisioning call and is
// then discarded.
type Record struct {
	Entity *Entity
	Group  *Group
}

// Key returns the record's identifier for logs and the run journal.
func (r *Record) Key() string {
	if r.Group != nil {
		return r.Group.Key()
	}
	return r.Entity.Key()
}

// Build classifies a data row into an Entity or Group record.
//
// Cell handling per attribute column:
//   - "${...}" cells are validated (never evaluated) and forwarded as
//     expression attributes.
//   - Object-id columns always declare their mapping, even with an empty
//     cell; a plain value in such a column is not sent — the IoT-Agent
//     populates the attribute from raw measurements at runtime.
//   - Remaining non-empty cells become static attributes, type-coerced per
//     the declared type.
//
// Returns:
//   - *Record: the built record
//   - error: row-level validation or coercion failure
func (b *Builder) Build(row []string) (*Record, error) {
	entityType := b.cell(row, b.schema.EntityType)
	entityID := b.cell(row, b.schema.EntityID)
	apiKey := b.cell(row, b.schema.APIKey)
	deviceID := b.cell(row, b.schema.DeviceID)
	protocol := b.cell(row, b.schema.Protocol)

	if entityType == "" {
		return nil, ErrMissingEntityType
	}
	if entityID == "" && apiKey == "" {
		return nil, ErrMissingIdentity
	}
	if entityID != "" && apiKey != "" {
		return nil, ErrAmbiguousIdentity
	}

	if deviceID == "" {
		deviceID = entityID
	}
	if protocol == "" {
		protocol = b.defaultProtocol
	}

	attributes, statics, err := b.buildAttributes(row)
	if err != nil {
		return nil, err
	}

	if apiKey != "" {
		protocols, err := parseProtocolList(protocol)
		if err != nil {
			return nil, err
		}
		return &Record{Group: &Group{
			APIKey:           apiKey,
			EntityType:       entityType,
			Protocol:         protocols,
			Attributes:       attributes,
			StaticAttributes: statics,
		}}, nil
	}

	if strings.ContainsAny(entityID, " \t") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEntityName, entityID)
	}

	return &Record{Entity: &Entity{
		DeviceID:         deviceID,
		EntityName:       entityID,
		EntityType:       entityType,
		Protocol:         protocol,
		Attributes:       attributes,
		StaticAttributes: statics,
	}}, nil
}

// cell returns the trimmed value of a row cell, or "" when the column is
// absent or the row is short.
func (b *Builder) cell(row []string, column int) string {
	if column < 0 || column >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[column])
}

// buildAttributes classifies every attribute column of a row and splits the
// results into device attributes (mapped or computed) and static attributes.
func (b *Builder) buildAttributes(row []string) (attributes, statics []Attribute, err error) {
	for _, col := range b.schema.Attributes {
		value := b.cell(row, col.Column)
		attr := attributeFromSchema(col)

		switch {
		case schema.IsFormula(value):
			formula, err := schema.ParseFormula(col.Name, value)
			if err != nil {
				return nil, nil, err
			}
			attr.Expression = formula.Raw
			attributes = append(attributes, attr)

		case col.DeviceMapped():
			// Mapping declaration only. Any plain cell value is dropped:
			// the measurement arrives from the device at runtime.
			attributes = append(attributes, attr)

		case value != "":
			coerced, err := col.Type.Coerce(value)
			if err != nil {
				return nil, nil, fmt.Errorf("attribute %q: %w", col.Name, err)
			}
			attr.Value = coerced
			statics = append(statics, attr)
		}
	}
	return attributes, statics, nil
}

// parseProtocolList parses a group protocol cell: either a single protocol
// name or a JSON list of names.
func parseProtocolList(value string) ([]string, error) {
	if !strings.HasPrefix(value, "[") {
		return []string{value}, nil
	}
	var protocols []string
	if err := json.Unmarshal([]byte(value), &protocols); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProtocolList, value)
	}
	if len(protocols) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProtocolList, value)
	}
	return protocols, nil
}
