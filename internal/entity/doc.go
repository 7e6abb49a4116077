// Package entity builds provisioning payloads from descriptor rows.
//
// Each data row of a descriptor file becomes either an Entity (a single
// device/twin, identified by entityID) or a Group (an IoT-Agent service
// group, identified by apiKey). Attributes are classified against the file's
// schema:
//
//   - Static: a plain value, type-coerced and copied into the payload.
//   - DeviceMapped: the column carries an object identifier; the payload
//     declares the mapping and the value arrives later from the device.
//   - Computed: the cell holds a "${...}" formula, forwarded unevaluated to
//     the IoT-Agent as an expression attribute.
//
// The routing decision — Context Broker versus IoT-Agent — is owned by this
// package (Route): an entity with any DeviceMapped or Computed attribute is
// device-managed and reaches the broker only through the IoT-Agent's own
// provisioning side effects.
package entity
