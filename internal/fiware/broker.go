package fiware

import (
	"context"
	"net/http"

	"github.com/wastetwin/provision-core/internal/entity"
)

// CreateEntity creates a direct entity in the Context Broker.
//
// POST /v2/entities with the NGSI keyed representation. The broker reports
// an existing entity as 422 Already Exists, surfaced as ErrConflict: there
// is deliberately no existence pre-check.
func (c *Client) CreateEntity(ctx context.Context, e entity.BrokerEntity) error {
	return c.do(ctx, http.MethodPost, c.platform.ContextBrokerURL+"/v2/entities", nil, e, created)
}

// DeleteEntity removes an entity from the Context Broker by id.
//
// 404 is tolerated (already absent). Device-managed entities are also
// deleted here: the IoT-Agent created their broker entity as a provisioning
// side effect, but it does not remove it on device deletion.
func (c *Client) DeleteEntity(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.platform.ContextBrokerURL+"/v2/entities/"+id, nil, nil, deleted)
}
