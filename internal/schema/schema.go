package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Type is the declared NGSI type of an attribute column.
type Type string

// Recognised attribute types.
const (
	TypeNumber          Type = "Number"
	TypeText            Type = "Text"
	TypeBoolean         Type = "Boolean"
	TypeDateTime        Type = "DateTime"
	TypeStructuredValue Type = "StructuredValue"
	TypeGeoJSON         Type = "geo:json"
)

// AllTypes returns the recognised type tokens.
func AllTypes() []Type {
	return []Type{
		TypeNumber,
		TypeText,
		TypeBoolean,
		TypeDateTime,
		TypeStructuredValue,
		TypeGeoJSON,
	}
}

var validTypes map[Type]struct{}

func init() {
	validTypes = make(map[Type]struct{}, len(AllTypes()))
	for _, t := range AllTypes() {
		validTypes[t] = struct{}{}
	}
}

// Coerce converts a raw cell value into the Go representation of the type.
//
// Number accepts a comma decimal separator ("12,5"), a habit of the
// spreadsheet exports this tool ingests. StructuredValue and geo:json cells
// hold JSON documents. DateTime and Text pass through unchanged.
func (t Type) Coerce(value string) (any, error) {
	switch t {
	case TypeNumber:
		n, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing number %q: %w", value, err)
		}
		return n, nil
	case TypeBoolean:
		b, err := strconv.ParseBool(strings.ToLower(value))
		if err != nil {
			return nil, fmt.Errorf("parsing boolean %q: %w", value, err)
		}
		return b, nil
	case TypeStructuredValue, TypeGeoJSON:
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			return nil, fmt.Errorf("parsing structured value %q: %w", value, err)
		}
		return v, nil
	default:
		return value, nil
	}
}

// Attribute describes one attribute column of a descriptor file.
// Immutable once parsed from the header.
type Attribute struct {
	// Column is the zero-based position in the data rows.
	Column int

	// Name is the entity attribute name, accepted verbatim (no platform
	// vocabulary is enforced).
	Name string

	// Type is the declared NGSI type.
	Type Type

	// ObjectID is the short measurement key used by the device protocol
	// ("t", "f"). Empty for attributes that are not device-sourced.
	ObjectID string
}

// DeviceMapped reports whether the column carries an object identifier.
func (a Attribute) DeviceMapped() bool { return a.ObjectID != "" }

// Index columns recognised by name in the header. These identify the entity
// rather than describe an attribute.
const (
	colEntityID   = "entityID"
	colEntityType = "entityType"
	colDeviceID   = "deviceID"
	colAPIKey     = "apiKey"
	colAPIKeyLow  = "apikey"
	colProtocol   = "protocol"
)

// timeInstantAttribute is set by the IoT-Agent at ingestion and must never be
// provisioned from a descriptor file.
const timeInstantAttribute = "TimeInstant"

// Schema relates descriptor columns to the fields needed to build an entity:
// identity columns plus the ordered attribute sequence (order = column order,
// preserved for stable payloads in logs).
type Schema struct {
	// Column indexes of the identity fields; -1 when the column is absent.
	EntityID   int
	EntityType int
	DeviceID   int
	APIKey     int
	Protocol   int

	// Attributes in column order.
	Attributes []Attribute
}

// Parse builds a Schema from a header row and an optional annotation row.
//
// With a two-row header, names holds "[object_id:]attribute_name" cells and
// annotations holds the matching "<Type>" cells. With a merged header,
// annotations is nil and each cell carries its own "<Type>" suffix.
//
// Parameters:
//   - names: first header row
//   - annotations: second header row, or nil for a merged header
//
// Returns:
//   - *Schema: the parsed schema
//   - error: *SchemaError describing the first defective cell
func Parse(names []string, annotations []string) (*Schema, error) {
	if len(names) == 0 {
		return nil, &SchemaError{Column: 0, Err: ErrEmptyHeader}
	}

	s := &Schema{
		EntityID:   -1,
		EntityType: -1,
		DeviceID:   -1,
		APIKey:     -1,
		Protocol:   -1,
	}

	seen := make(map[string]struct{}, len(names))
	for column, cell := range names {
		cell = strings.TrimSpace(cell)
		if annotations != nil && column < len(annotations) {
			if ann := strings.TrimSpace(annotations[column]); ann != "" {
				cell += ann
			}
		}
		if cell == "" {
			continue
		}

		// Identity columns are matched on the bare name; a <Text> annotation
		// on them is accepted and ignored.
		switch bareName(cell) {
		case colEntityID:
			s.EntityID = column
			continue
		case colEntityType:
			s.EntityType = column
			continue
		case colDeviceID:
			s.DeviceID = column
			continue
		case colAPIKey, colAPIKeyLow:
			s.APIKey = column
			continue
		case colProtocol:
			s.Protocol = column
			continue
		case timeInstantAttribute:
			continue
		}

		attr, err := parseAttributeCell(column, cell)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[attr.Name]; dup {
			return nil, &SchemaError{Column: column, Cell: cell, Err: ErrDuplicateAttribute}
		}
		seen[attr.Name] = struct{}{}
		s.Attributes = append(s.Attributes, attr)
	}

	if s.EntityID < 0 && s.APIKey < 0 {
		return nil, &SchemaError{Column: 0, Cell: strings.Join(names, ","), Err: ErrNoIdentity}
	}
	if s.EntityType < 0 {
		return nil, &SchemaError{Column: 0, Cell: strings.Join(names, ","), Err: ErrNoEntityType}
	}

	return s, nil
}

// DeviceManaged reports whether entities of this schema must be provisioned
// through the IoT-Agent. It is a property of the schema, not of any single
// row: one device-mapped column routes every row of the file.
func (s *Schema) DeviceManaged() bool {
	for _, a := range s.Attributes {
		if a.DeviceMapped() {
			return true
		}
	}
	return false
}

// IsAnnotationRow reports whether a record holds only "<Type>" cells and
// therefore is the second row of a two-row header.
func IsAnnotationRow(row []string) bool {
	sawAnnotation := false
	for _, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if !strings.HasPrefix(cell, "<") || !strings.HasSuffix(cell, ">") {
			return false
		}
		sawAnnotation = true
	}
	return sawAnnotation
}

// bareName returns the cell text before any "<Type>" annotation.
func bareName(cell string) string {
	if i := strings.IndexByte(cell, '<'); i >= 0 {
		return strings.TrimSpace(cell[:i])
	}
	return cell
}

// parseAttributeCell parses one "[object_id:]attribute_name<Type>" cell.
func parseAttributeCell(column int, cell string) (Attribute, error) {
	open := strings.IndexByte(cell, '<')
	if open < 0 || !strings.HasSuffix(cell, ">") {
		return Attribute{}, &SchemaError{Column: column, Cell: cell, Err: ErrMissingType}
	}

	name := strings.TrimSpace(cell[:open])
	typeToken := Type(strings.TrimSpace(strings.TrimSuffix(cell[open+1:], ">")))
	if _, ok := validTypes[typeToken]; !ok {
		return Attribute{}, &SchemaError{Column: column, Cell: cell, Err: ErrUnknownType}
	}

	objectID := ""
	if i := strings.IndexByte(name, ':'); i >= 0 {
		objectID = strings.TrimSpace(name[:i])
		name = strings.TrimSpace(name[i+1:])
		if objectID == "" {
			return Attribute{}, &SchemaError{Column: column, Cell: cell, Err: ErrEmptyObjectID}
		}
	}
	if name == "" {
		return Attribute{}, &SchemaError{Column: column, Cell: cell, Err: ErrEmptyName}
	}

	return Attribute{
		Column:   column,
		Name:     name,
		Type:     typeToken,
		ObjectID: objectID,
	}, nil
}
