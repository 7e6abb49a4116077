package fiware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/wastetwin/provision-core/internal/entity"
	"github.com/wastetwin/provision-core/internal/infrastructure/config"
)

// newTestClient builds an authenticated Client whose keystone, broker and
// agent URLs all point at the given handler.
func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		Platform: config.Platform{
			KeystoneURL:      server.URL,
			ContextBrokerURL: server.URL,
			IoTAgentURL:      server.URL,
			Service:          "wastemgmt",
			Subservice:       "/containers",
			DefaultProtocol:  "IoTA-UL",
		},
		Auth: config.AuthConfig{Username: "prov_admin", Password: "prov_secret"},
		HTTP: config.HTTPConfig{TimeoutSeconds: 5},
	}
	client := New(cfg)

	return client, server
}

// authStub answers the keystone endpoint; other requests fall through to next.
func authStub(t *testing.T, next http.Handler) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v3/auth/tokens" {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("auth request body not JSON: %v", err)
			}
			w.Header().Set("X-Subject-Token", "test-token")
			w.WriteHeader(http.StatusCreated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate fails the test if authentication fails.
func authenticate(t *testing.T, c *Client) {
	t.Helper()

	if err := c.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	var captured map[string]any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/auth/tokens" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decoding auth body: %v", err)
		}
		w.Header().Set("X-Subject-Token", "token-123")
		w.WriteHeader(http.StatusCreated)
	})

	client, _ := newTestClient(t, handler)
	authenticate(t, client)

	token, err := client.currentToken()
	if err != nil || token != "token-123" {
		t.Errorf("currentToken() = (%q, %v), want (token-123, nil)", token, err)
	}

	// The scope must name the configured service and subservice.
	auth, _ := captured["auth"].(map[string]any)
	scope, _ := auth["scope"].(map[string]any)
	project, _ := scope["project"].(map[string]any)
	if project["name"] != "/containers" {
		t.Errorf("scope project = %v, want /containers", project["name"])
	}
}

func TestAuthenticate_Rejected(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	client, _ := newTestClient(t, handler)
	err := client.Authenticate(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Authenticate() error = %v, want ErrUnauthorized", err)
	}
}

func TestCreateEntity_NotAuthenticated(t *testing.T) {
	client, _ := newTestClient(t, http.NotFoundHandler())

	err := client.CreateEntity(context.Background(), entity.BrokerEntity{ID: "X", Type: "T"})
	if !errors.Is(err, ErrNoToken) {
		t.Errorf("CreateEntity() error = %v, want ErrNoToken", err)
	}
}

func TestCreateEntity_ScopedHeaders(t *testing.T) {
	handler := authStub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/entities" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Fiware-Service"); got != "wastemgmt" {
			t.Errorf("Fiware-Service = %q, want wastemgmt", got)
		}
		if got := r.Header.Get("Fiware-ServicePath"); got != "/containers" {
			t.Errorf("Fiware-ServicePath = %q, want /containers", got)
		}
		if got := r.Header.Get("X-Auth-Token"); got != "test-token" {
			t.Errorf("X-Auth-Token = %q, want test-token", got)
		}

		var doc map[string]any
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			t.Errorf("decoding entity body: %v", err)
		}
		if doc["id"] != "MODEL-240L" || doc["type"] != "WasteContainerModel" {
			t.Errorf("entity doc = %v", doc)
		}
		w.WriteHeader(http.StatusCreated)
	}))

	client, _ := newTestClient(t, handler)
	authenticate(t, client)

	err := client.CreateEntity(context.Background(), entity.BrokerEntity{
		ID:   "MODEL-240L",
		Type: "WasteContainerModel",
		Attributes: []entity.Attribute{
			{Name: "areaServed", Type: "Text", Value: "North"},
		},
	})
	if err != nil {
		t.Errorf("CreateEntity() error = %v", err)
	}
}

func TestCreateEntity_Conflict(t *testing.T) {
	handler := authStub(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// NGSI v2 reports duplicates as 422 Unprocessable Entity.
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))

	client, _ := newTestClient(t, handler)
	authenticate(t, client)

	err := client.CreateEntity(context.Background(), entity.BrokerEntity{ID: "X", Type: "T"})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("CreateEntity() error = %v, want ErrConflict", err)
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error type = %T, want *StatusError", err)
	}
	if statusErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("StatusError.Status = %d, want 422", statusErr.Status)
	}
}

func TestDeleteEntity_NotFoundTolerated(t *testing.T) {
	handler := authStub(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	client, _ := newTestClient(t, handler)
	authenticate(t, client)

	if err := client.DeleteEntity(context.Background(), "NEVER-CREATED"); err != nil {
		t.Errorf("DeleteEntity() error = %v, want nil for absent entity", err)
	}
}

func TestDeleteEntity_ServerErrorPropagates(t *testing.T) {
	handler := authStub(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	client, _ := newTestClient(t, handler)
	authenticate(t, client)

	err := client.DeleteEntity(context.Background(), "CONTAINER-001")
	if !errors.Is(err, ErrTransport) {
		t.Errorf("DeleteEntity() error = %v, want ErrTransport", err)
	}
}

func TestCreateDevice_PayloadShape(t *testing.T) {
	handler := authStub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/iot/devices" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var payload struct {
			Devices []map[string]any `json:"devices"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decoding devices payload: %v", err)
		}
		if len(payload.Devices) != 1 {
			t.Fatalf("devices = %d, want 1", len(payload.Devices))
		}

		device := payload.Devices[0]
		if device["device_id"] != "SENSOR-1" || device["entity_name"] != "CONTAINER-001" {
			t.Errorf("device identity = %v", device)
		}

		attrs, _ := device["attributes"].([]any)
		if len(attrs) != 1 {
			t.Fatalf("attributes = %v, want 1 entry", attrs)
		}
		attr, _ := attrs[0].(map[string]any)
		if attr["object_id"] != "f" || attr["name"] != "fillingLevel" {
			t.Errorf("mapping = %v, want object_id f → fillingLevel", attr)
		}
		// The formula must arrive unevaluated.
		if attr["expression"] != "${(150-@fillingLevel)/150}" {
			t.Errorf("expression = %v, want raw formula", attr["expression"])
		}

		statics, _ := device["static_attributes"].([]any)
		if len(statics) != 1 {
			t.Fatalf("static_attributes = %v, want 1 entry", statics)
		}
		static, _ := statics[0].(map[string]any)
		if static["name"] != "areaServed" || static["value"] != "North" {
			t.Errorf("static attribute = %v", static)
		}

		w.WriteHeader(http.StatusCreated)
	}))

	client, _ := newTestClient(t, handler)
	authenticate(t, client)

	err := client.CreateDevice(context.Background(), &entity.Entity{
		DeviceID:   "SENSOR-1",
		EntityName: "CONTAINER-001",
		EntityType: "WasteContainer",
		Protocol:   "IoTA-JSON",
		Attributes: []entity.Attribute{
			{Name: "fillingLevel", Type: "Number", ObjectID: "f", Expression: "${(150-@fillingLevel)/150}"},
		},
		StaticAttributes: []entity.Attribute{
			{Name: "areaServed", Type: "Text", Value: "North"},
		},
	})
	if err != nil {
		t.Errorf("CreateDevice() error = %v", err)
	}
}

func TestDeleteDevice_ProtocolQuery(t *testing.T) {
	handler := authStub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/iot/devices/SENSOR-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("protocol"); got != "IoTA-JSON" {
			t.Errorf("protocol = %q, want IoTA-JSON", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	client, _ := newTestClient(t, handler)
	authenticate(t, client)

	if err := client.DeleteDevice(context.Background(), "SENSOR-1", "IoTA-JSON"); err != nil {
		t.Errorf("DeleteDevice() error = %v", err)
	}
}

func TestDeleteGroup_APIKeyQuery(t *testing.T) {
	handler := authStub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/iot/services" || r.Method != http.MethodDelete {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("apikey") != "4jggokgpepnvsb2uv4s40d59ov" || q.Get("protocol") != "IoTA-UL" {
			t.Errorf("query = %v", q)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	client, _ := newTestClient(t, handler)
	authenticate(t, client)

	if err := client.DeleteGroup(context.Background(), "4jggokgpepnvsb2uv4s40d59ov", "IoTA-UL"); err != nil {
		t.Errorf("DeleteGroup() error = %v", err)
	}
}

// fakeBroker is a stateful entity store for round-trip tests.
type fakeBroker struct {
	mu       sync.Mutex
	entities map[string]bool
}

func (f *fakeBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		var doc map[string]any
		_ = json.NewDecoder(r.Body).Decode(&doc)
		id, _ := doc["id"].(string)
		if f.entities[id] {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		f.entities[id] = true
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		id := r.URL.Path[len("/v2/entities/"):]
		if !f.entities[id] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.entities, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestEntityLifecycle_RoundTrip(t *testing.T) {
	broker := &fakeBroker{entities: make(map[string]bool)}
	client, _ := newTestClient(t, authStub(t, broker))
	authenticate(t, client)

	ctx := context.Background()
	e := entity.BrokerEntity{ID: "CONTAINER-001", Type: "WasteContainer"}

	// Create then delete leaves no residual state.
	if err := client.CreateEntity(ctx, e); err != nil {
		t.Fatalf("first CreateEntity() error = %v", err)
	}
	if err := client.DeleteEntity(ctx, e.ID); err != nil {
		t.Fatalf("DeleteEntity() error = %v", err)
	}

	// Deleting again is idempotent.
	if err := client.DeleteEntity(ctx, e.ID); err != nil {
		t.Errorf("repeated DeleteEntity() error = %v, want nil", err)
	}

	// Create twice without an intervening delete conflicts on the second call.
	if err := client.CreateEntity(ctx, e); err != nil {
		t.Fatalf("CreateEntity() after delete error = %v", err)
	}
	if err := client.CreateEntity(ctx, e); !errors.Is(err, ErrConflict) {
		t.Errorf("second CreateEntity() error = %v, want ErrConflict", err)
	}
}
