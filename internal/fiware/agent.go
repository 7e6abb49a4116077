package fiware

import (
	"context"
	"net/http"
	"net/url"

	"github.com/wastetwin/provision-core/internal/entity"
)

// devicesPayload is the IoT-Agent device provisioning envelope.
type devicesPayload struct {
	Devices []*entity.Entity `json:"devices"`
}

// servicesPayload is the IoT-Agent service-group provisioning envelope.
type servicesPayload struct {
	Services []*entity.Group `json:"services"`
}

// CreateDevice registers a device-managed entity with the IoT-Agent.
//
// The device record carries the object-id mappings, the unevaluated
// expression attributes, and the co-located static attributes; the agent
// materialises the broker entity as its own side effect. A duplicate device
// id yields 409, surfaced as ErrConflict.
func (c *Client) CreateDevice(ctx context.Context, device *entity.Entity) error {
	payload := devicesPayload{Devices: []*entity.Entity{device}}
	return c.do(ctx, http.MethodPost, c.platform.IoTAgentURL+"/iot/devices", nil, payload, created)
}

// DeleteDevice removes a device registration. 404 is tolerated.
//
// The protocol query narrows the deletion for agents serving multiple
// protocols, matching the registration.
func (c *Client) DeleteDevice(ctx context.Context, deviceID, protocol string) error {
	query := url.Values{}
	if protocol != "" {
		query.Set("protocol", protocol)
	}
	return c.do(ctx, http.MethodDelete, c.platform.IoTAgentURL+"/iot/devices/"+deviceID, query, nil, deleted)
}

// CreateGroup registers an IoT-Agent service group for an API key.
func (c *Client) CreateGroup(ctx context.Context, group *entity.Group) error {
	payload := servicesPayload{Services: []*entity.Group{group}}
	return c.do(ctx, http.MethodPost, c.platform.IoTAgentURL+"/iot/services", nil, payload, created)
}

// DeleteGroup removes the service group registered for an API key under one
// protocol. Groups registered for several protocols need one call per
// protocol. 404 is tolerated.
func (c *Client) DeleteGroup(ctx context.Context, apiKey, protocol string) error {
	query := url.Values{}
	query.Set("apikey", apiKey)
	if protocol != "" {
		query.Set("protocol", protocol)
	}
	return c.do(ctx, http.MethodDelete, c.platform.IoTAgentURL+"/iot/services", query, nil, deleted)
}
