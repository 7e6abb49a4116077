// Package fiware is the HTTP client for the platform's provisioning APIs.
//
// Three collaborators are involved:
//
//   - Keystone-style identity service: exchanges username/password/service
//     for a scoped token (X-Subject-Token), consumed as an opaque bearer.
//   - Orion Context Broker (NGSI v2): direct entity create/delete for
//     entities that have no device behind them.
//   - IoT-Agent north port: device and service-group provisioning for
//     device-managed entities.
//
// Every request is scoped with the Fiware-Service / Fiware-ServicePath
// headers and authenticated with X-Auth-Token.
//
// Error contract:
//
//   - Create on an existing entity/device surfaces ErrConflict. There is no
//     existence pre-check: the caller deletes stale entities first when
//     re-provisioning.
//   - Delete tolerates 404 (already absent), making repeated deletions
//     idempotent. Other failures propagate.
//   - A single attempt per call; retries are the pipeline's decision.
package fiware
