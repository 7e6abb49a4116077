package entity

import "fmt"

// Route maps an entity's kind to the API that owns its lifecycle.
//
//   - DirectEntity → ContextBrokerEntity: the payload is the full static
//     attribute set, unchanged (see BrokerPayload).
//   - DeviceManaged → IoTAgentDevice: the device record carries the
//     object-id mappings and expression attributes, with co-located static
//     attributes riding along through the IoT-Agent's static-attribute
//     passthrough.
//
// A device-managed entity is never sent to the Context Broker directly; the
// broker entity appears as a side effect of IoT-Agent provisioning.
//
// The defensive check mirrors the classifier's invariant: a direct entity
// must not carry device attributes. It cannot happen when the record came
// from Builder.Build, but routing is the last gate before dispatch.
func Route(e *Entity) (Target, error) {
	switch e.Kind() {
	case DeviceManaged:
		return IoTAgentDevice, nil
	case DirectEntity:
		for _, attr := range e.StaticAttributes {
			if attr.Class() != Static {
				return 0, fmt.Errorf("%w: attribute %q", ErrConflictingClass, attr.Name)
			}
		}
		return ContextBrokerEntity, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownKind, e.Kind())
	}
}

// BrokerPayload converts a direct entity into its NGSI v2 representation.
// Call only after Route returned ContextBrokerEntity.
func BrokerPayload(e *Entity) BrokerEntity {
	return BrokerEntity{
		ID:         e.DeviceID,
		Type:       e.EntityType,
		Attributes: e.StaticAttributes,
	}
}
