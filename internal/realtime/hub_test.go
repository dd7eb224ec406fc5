package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickbite/delivery-core/internal/domain/user"
)

func TestOrderParties(t *testing.T) {
	aud := OrderParties("cust-1", "agent-1")
	assert.ElementsMatch(t, []string{"cust-1", "agent-1"}, aud.UserIDs)
	assert.Equal(t, []user.Role{user.RoleAdmin}, aud.Roles)

	unassigned := OrderParties("cust-1", "")
	assert.Equal(t, []string{"cust-1"}, unassigned.UserIDs)
	assert.Equal(t, []user.Role{user.RoleAdmin}, unassigned.Roles)
}

func TestEncode(t *testing.T) {
	data, err := Encode(OrderCancelled{OrderID: "ord-1"})
	require.NoError(t, err)

	var frame struct {
		Type    Type `json:"type"`
		Payload struct {
			OrderID string `json:"orderId"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, TypeOrderCancelled, frame.Type)
	assert.Equal(t, "ord-1", frame.Payload.OrderID)
}

// --- Hub (live connections) ---

func newTestHub(t *testing.T) (*Hub, *Registry, string) {
	t.Helper()
	registry := NewRegistry()
	hub := NewHub(registry, nil, nil)
	t.Cleanup(hub.Close)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	return hub, registry, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialRegistered(t *testing.T, url, userID string, role user.Role) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	require.NoError(t, ws.WriteJSON(registerFrame{Type: "register", UserID: userID, Role: role}))
	return ws
}

func readEnvelope(t *testing.T, ws *websocket.Conn) (Type, json.RawMessage) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var frame struct {
		Type    Type            `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame.Type, frame.Payload
}

func TestHub_PublishToOrderParties(t *testing.T) {
	hub, registry, url := newTestHub(t)

	customer := dialRegistered(t, url, "cust-1", user.RoleCustomer)
	admin := dialRegistered(t, url, "admin-1", user.RoleAdmin)
	bystander := dialRegistered(t, url, "cust-2", user.RoleCustomer)

	require.Eventually(t, func() bool { return registry.Len() == 3 },
		2*time.Second, 10*time.Millisecond)

	hub.Publish(
		OrderStatusUpdate{OrderID: "ord-1", Previous: "pending", Status: "confirmed"},
		OrderParties("cust-1", ""),
	)

	for _, ws := range []*websocket.Conn{customer, admin} {
		typ, payload := readEnvelope(t, ws)
		assert.Equal(t, TypeOrderStatusUpdate, typ)
		assert.Contains(t, string(payload), `"orderId":"ord-1"`)
	}

	// The uninvolved customer hears nothing.
	require.NoError(t, bystander.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := bystander.ReadMessage()
	assert.Error(t, err)
}

func TestHub_PublishToRole(t *testing.T) {
	hub, registry, url := newTestHub(t)

	agent := dialRegistered(t, url, "agent-1", user.RoleAgent)
	dialRegistered(t, url, "cust-1", user.RoleCustomer)

	require.Eventually(t, func() bool { return registry.Len() == 2 },
		2*time.Second, 10*time.Millisecond)

	hub.Publish(AgentStatusUpdate{AgentID: "agent-1", Online: true}, Roles(user.RoleAgent))

	typ, _ := readEnvelope(t, agent)
	assert.Equal(t, TypeAgentStatusUpdate, typ)
}

func TestHub_MultiDeviceFanout(t *testing.T) {
	hub, registry, url := newTestHub(t)

	first := dialRegistered(t, url, "cust-1", user.RoleCustomer)
	second := dialRegistered(t, url, "cust-1", user.RoleCustomer)

	require.Eventually(t, func() bool { return registry.Len() == 2 },
		2*time.Second, 10*time.Millisecond)

	hub.Publish(OrderCancelled{OrderID: "ord-1"}, Users("cust-1"))

	for _, ws := range []*websocket.Conn{first, second} {
		typ, _ := readEnvelope(t, ws)
		assert.Equal(t, TypeOrderCancelled, typ)
	}
}

func TestHub_MalformedRegisterDropped(t *testing.T) {
	_, registry, url := newTestHub(t)

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = ws.ReadMessage()
	assert.Error(t, err, "connection must be closed without a valid register frame")
	assert.Zero(t, registry.Len())
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	_, registry, url := newTestHub(t)

	ws := dialRegistered(t, url, "cust-1", user.RoleCustomer)
	require.Eventually(t, func() bool { return registry.Len() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool { return registry.Len() == 0 },
		2*time.Second, 10*time.Millisecond)
}
