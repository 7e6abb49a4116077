package pipeline

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wastetwin/provision-core/internal/entity"
	"github.com/wastetwin/provision-core/internal/schema"
)

// yamlDescriptor is the top-level shape of a YAML descriptor file.
//
// Groups and entities are decoded in two steps (map of yaml.Node first)
// so each object keeps its source line for error reporting.
type yamlDescriptor struct {
	Groups   map[string]yaml.Node `yaml:"groups"`
	Entities map[string]yaml.Node `yaml:"entities"`
}

// yamlAttribute is one attribute of a group or entity descriptor.
type yamlAttribute struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	ObjectID   string `yaml:"object_id"`
	Expression string `yaml:"expression"`
	Value      any    `yaml:"value"`
}

// yamlGroup is a service group descriptor. The map key under groups: is
// the name entities use to reference it.
type yamlGroup struct {
	APIKey     string          `yaml:"apiKey"`
	EntityType string          `yaml:"entityType"`
	Protocol   protocolList    `yaml:"protocol"`
	Attributes []yamlAttribute `yaml:"attributes"`
}

// yamlEntity is an entity descriptor. The map key under entities: is the
// entity name; deviceID defaults to it. An entity either names a group
// (inheriting its entity type and attributes, with per-name value
// overrides) or declares entityType and attributes itself.
type yamlEntity struct {
	Group      string          `yaml:"group"`
	EntityType string          `yaml:"entityType"`
	DeviceID   string          `yaml:"deviceID"`
	Protocol   string          `yaml:"protocol"`
	Attributes []yamlAttribute `yaml:"attributes"`
	Values     map[string]any  `yaml:"values"`
}

// protocolList accepts either a single protocol name or a list of them.
type protocolList []string

func (p *protocolList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var single string
		if err := node.Decode(&single); err != nil {
			return err
		}
		*p = protocolList{single}
		return nil
	}
	var many []string
	if err := node.Decode(&many); err != nil {
		return err
	}
	*p = protocolList(many)
	return nil
}

// forEachYAMLRecord streams a YAML descriptor: groups first (in name
// order, so output is deterministic), then entities. Groups are added to
// the shared index before any entity of the file is resolved.
func forEachYAMLRecord(path, defaultProtocol string, groups map[string]*entity.Group, fn func(Item) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("opening descriptor: %w", err)
	}

	var doc yamlDescriptor
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for _, name := range sortedKeys(doc.Groups) {
		node := doc.Groups[name]
		item := Item{Source: path, Line: node.Line}
		group, err := buildGroup(node, defaultProtocol)
		if err != nil {
			item.Err = fmt.Errorf("%s group %q: %w", path, name, err)
		} else {
			groups[name] = group
			item.Record = &entity.Record{Group: group}
		}
		if err := fn(item); err != nil {
			return err
		}
	}

	for _, name := range sortedKeys(doc.Entities) {
		node := doc.Entities[name]
		item := Item{Source: path, Line: node.Line}
		ent, err := buildEntity(name, node, groups, defaultProtocol)
		if err != nil {
			item.Err = fmt.Errorf("%s entity %q: %w", path, name, err)
		} else {
			item.Record = &entity.Record{Entity: ent}
		}
		if err := fn(item); err != nil {
			return err
		}
	}

	return nil
}

// buildGroup decodes and validates one group descriptor.
func buildGroup(node yaml.Node, defaultProtocol string) (*entity.Group, error) {
	var spec yamlGroup
	if err := node.Decode(&spec); err != nil {
		return nil, err
	}
	if spec.APIKey == "" {
		return nil, fmt.Errorf("apiKey is required")
	}
	if spec.EntityType == "" {
		return nil, fmt.Errorf("entityType is required")
	}
	if len(spec.Protocol) == 0 {
		spec.Protocol = protocolList{defaultProtocol}
	}

	attributes, statics, err := splitAttributes(spec.Attributes)
	if err != nil {
		return nil, err
	}

	return &entity.Group{
		APIKey:           spec.APIKey,
		EntityType:       spec.EntityType,
		Protocol:         spec.Protocol,
		Attributes:       attributes,
		StaticAttributes: statics,
	}, nil
}

// buildEntity decodes one entity descriptor and resolves its group
// inheritance: the group's attributes are cloned, per-name value
// overrides applied, and the entity's own attributes appended (replacing
// inherited attributes with the same name).
func buildEntity(name string, node yaml.Node, groups map[string]*entity.Group, defaultProtocol string) (*entity.Entity, error) {
	var spec yamlEntity
	if err := node.Decode(&spec); err != nil {
		return nil, err
	}

	if strings.ContainsAny(name, " \t") {
		return nil, fmt.Errorf("%w: %q", entity.ErrInvalidEntityName, name)
	}

	entityType := spec.EntityType
	var merged []entity.Attribute
	if spec.Group != "" {
		group, ok := groups[spec.Group]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, spec.Group)
		}
		if entityType == "" {
			entityType = group.EntityType
		}
		merged = append(merged, group.StaticAttributes...)
		merged = append(merged, group.Attributes...)
	}
	if entityType == "" {
		return nil, fmt.Errorf("entityType is required (set it or reference a group)")
	}

	own, statics, err := splitAttributes(spec.Attributes)
	if err != nil {
		return nil, err
	}
	for _, attr := range append(statics, own...) {
		merged = replaceOrAppend(merged, attr)
	}

	for _, overrideName := range sortedKeys(spec.Values) {
		idx := indexOf(merged, overrideName)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAttribute, overrideName)
		}
		merged[idx].Value = spec.Values[overrideName]
		merged[idx].Expression = ""
	}

	deviceID := spec.DeviceID
	if deviceID == "" {
		deviceID = name
	}
	protocol := spec.Protocol
	if protocol == "" {
		protocol = defaultProtocol
	}

	ent := &entity.Entity{
		DeviceID:   deviceID,
		EntityName: name,
		EntityType: entityType,
		Protocol:   protocol,
	}
	for _, attr := range merged {
		if attr.Value != nil {
			ent.StaticAttributes = append(ent.StaticAttributes, attr)
		} else {
			ent.Attributes = append(ent.Attributes, attr)
		}
	}
	return ent, nil
}

// splitAttributes validates descriptor attributes and splits them into
// device attributes (no value) and static attributes (fixed value).
// Expressions are syntax-checked and never evaluated.
func splitAttributes(specs []yamlAttribute) (attributes, statics []entity.Attribute, err error) {
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, nil, fmt.Errorf("attribute without a name")
		}
		if spec.Type == "" {
			return nil, nil, fmt.Errorf("attribute %q: type is required", spec.Name)
		}
		if spec.Expression != "" {
			if _, err := schema.ParseFormula(spec.Name, spec.Expression); err != nil {
				return nil, nil, err
			}
		}
		attr := entity.Attribute{
			Name:       spec.Name,
			Type:       spec.Type,
			ObjectID:   spec.ObjectID,
			Expression: spec.Expression,
			Value:      spec.Value,
		}
		if attr.Value != nil {
			statics = append(statics, attr)
		} else {
			attributes = append(attributes, attr)
		}
	}
	return attributes, statics, nil
}

// replaceOrAppend inserts attr, replacing an existing attribute with the
// same name in place.
func replaceOrAppend(attrs []entity.Attribute, attr entity.Attribute) []entity.Attribute {
	if idx := indexOf(attrs, attr.Name); idx >= 0 {
		attrs[idx] = attr
		return attrs
	}
	return append(attrs, attr)
}

// indexOf returns the position of the named attribute, or -1.
func indexOf(attrs []entity.Attribute, name string) int {
	for i, attr := range attrs {
		if attr.Name == name {
			return i
		}
	}
	return -1
}

// sortedKeys returns the map's keys in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
