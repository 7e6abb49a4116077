package entity

import (
	"encoding/json"

	"github.com/wastetwin/provision-core/internal/schema"
)

// Class is the provisioning role of a single attribute.
type Class int

const (
	// Static attributes carry a fixed value copied into the payload.
	Static Class = iota

	// DeviceMapped attributes declare an object-id → name mapping; the value
	// is populated by the IoT-Agent from raw measurements at runtime.
	DeviceMapped

	// Computed attributes carry a formula the IoT-Agent evaluates at each
	// measurement ingestion. The pipeline forwards the text unevaluated.
	Computed
)

// Kind is the routing class of a whole entity.
type Kind int

const (
	// DirectEntity entities hold only static attributes and are created
	// directly in the Context Broker.
	DirectEntity Kind = iota

	// DeviceManaged entities carry at least one DeviceMapped or Computed
	// attribute and are provisioned through the IoT-Agent.
	DeviceManaged
)

func (k Kind) String() string {
	switch k {
	case DeviceManaged:
		return "device-managed"
	default:
		return "direct"
	}
}

// Target is the downstream API that owns an entity's lifecycle.
type Target int

const (
	// ContextBrokerEntity targets the NGSI entity store directly.
	ContextBrokerEntity Target = iota

	// IoTAgentDevice targets the device-management layer.
	IoTAgentDevice

	// IoTAgentGroup targets the device-management layer's service groups.
	IoTAgentGroup
)

func (t Target) String() string {
	switch t {
	case IoTAgentDevice:
		return "iot-agent-device"
	case IoTAgentGroup:
		return "iot-agent-group"
	default:
		return "context-broker"
	}
}

// Attribute is one attribute of a provisioning payload, in the shape the
// IoT-Agent north port expects. Exactly one of Value and Expression is set
// for Static and Computed attributes; DeviceMapped attributes set neither.
type Attribute struct {
	Name       string `json:"name"       yaml:"name"`
	Type       string `json:"type"       yaml:"type"`
	ObjectID   string `json:"object_id,omitempty"  yaml:"object_id,omitempty"`
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
	Value      any    `json:"value,omitempty"      yaml:"value,omitempty"`
}

// Class reports the provisioning role of the attribute.
func (a Attribute) Class() Class {
	switch {
	case a.Expression != "":
		return Computed
	case a.ObjectID != "":
		return DeviceMapped
	default:
		return Static
	}
}

// Entity is one provisionable twin: a waste container, a container model, or
// any other row identified by entityID. Attributes holds the device-mapped
// and computed attributes; StaticAttributes the fixed ones. Both may be
// empty, never overlapping.
type Entity struct {
	DeviceID         string      `json:"device_id"   yaml:"device_id"`
	EntityName       string      `json:"entity_name" yaml:"entity_name"`
	EntityType       string      `json:"entity_type" yaml:"entity_type"`
	Protocol         string      `json:"protocol"    yaml:"protocol"`
	Attributes       []Attribute `json:"attributes,omitempty"        yaml:"attributes,omitempty"`
	StaticAttributes []Attribute `json:"static_attributes,omitempty" yaml:"static_attributes,omitempty"`
}

// Kind reports the routing class, derived once from the attribute split.
func (e *Entity) Kind() Kind {
	if len(e.Attributes) > 0 {
		return DeviceManaged
	}
	return DirectEntity
}

// Key returns the identifier used in logs and the run journal.
func (e *Entity) Key() string { return e.DeviceID }

// Group is an IoT-Agent service group: shared provisioning context for all
// devices that report with the same API key.
type Group struct {
	APIKey           string      `json:"apikey"      yaml:"apikey"`
	EntityType       string      `json:"entity_type" yaml:"entity_type"`
	Protocol         []string    `json:"protocol"    yaml:"protocol"`
	Attributes       []Attribute `json:"attributes,omitempty"        yaml:"attributes,omitempty"`
	StaticAttributes []Attribute `json:"static_attributes,omitempty" yaml:"static_attributes,omitempty"`
}

// Key returns the identifier used in logs and the run journal.
func (g *Group) Key() string { return g.APIKey }

// BrokerEntity is the NGSI v2 representation of a DirectEntity payload:
// id, type, and one {type, value} object per static attribute.
type BrokerEntity struct {
	ID         string
	Type       string
	Attributes []Attribute
}

// MarshalJSON flattens the attribute list into NGSI v2 keyed form.
func (b BrokerEntity) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(b.Attributes)+2)
	doc["id"] = b.ID
	doc["type"] = b.Type
	for _, attr := range b.Attributes {
		doc[attr.Name] = map[string]any{
			"type":  attr.Type,
			"value": attr.Value,
		}
	}
	return json.Marshal(doc)
}

// attributeFromSchema builds the payload attribute for a schema column.
func attributeFromSchema(col schema.Attribute) Attribute {
	return Attribute{
		Name:     col.Name,
		Type:     string(col.Type),
		ObjectID: col.ObjectID,
	}
}
