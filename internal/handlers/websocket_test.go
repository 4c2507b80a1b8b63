package handlers

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"sensor_gateway/internal/broadcast"
	"sensor_gateway/internal/models"
	"sensor_gateway/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type wsEnvelope struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

// startWS serves only /ws and dials it with the given query.
func startWS(t *testing.T, s *service.Service, hub *broadcast.Hub, query url.Values) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(s, hub, LinkInfo{}, nil)
	r.GET("/ws", h.wsConnect)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	u.RawQuery = query.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wsEnvelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env wsEnvelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func waitForClients(t *testing.T, hub *broadcast.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients: got %d, want %d", hub.Count(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocket_InitialDataThenReadings(t *testing.T) {
	q := &mockQuery{
		nodes:  []models.Reading{sampleReading("NODE1", 20)},
		recent: []models.Reading{sampleReading("NODE1", 19), sampleReading("NODE1", 20)},
	}
	hub := broadcast.NewHub(0, nil)
	conn := startWS(t, &service.Service{Query: q, Commander: &mockCommander{}}, hub, nil)

	env := readEnvelope(t, conn)
	if env.Type != broadcast.TypeInitialData {
		t.Fatalf("first message type %q", env.Type)
	}
	var init struct {
		Nodes   []map[string]any `json:"nodes"`
		History []map[string]any `json:"history"`
	}
	if err := json.Unmarshal(env.Data, &init); err != nil {
		t.Fatalf("unmarshal initialData: %v", err)
	}
	if len(init.Nodes) != 1 || len(init.History) != 2 {
		t.Fatalf("unexpected initialData %+v", init)
	}
	waitForClients(t, hub, 1)
	ack := sampleReading("NODE1", 21)
	ack.Relay = true
	ack.Ack = ptr(true)
	if err := hub.Publish(t.Context(), ack); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if env := readEnvelope(t, conn); env.Type != broadcast.TypeSensorData {
		t.Fatalf("want sensorData, got %+v", env)
	}
	env = readEnvelope(t, conn)
	if env.Type != broadcast.TypeCommandAck {
		t.Fatalf("want commandAck, got %+v", env)
	}
	var got broadcast.CommandAck
	_ = json.Unmarshal(env.Data, &got)
	if got != (broadcast.CommandAck{NodeID: "NODE1", Relay: true}) {
		t.Fatalf("unexpected ack %+v", got)
	}
}

func TestWebSocket_ControlRelay(t *testing.T) {
	cmd := &mockCommander{sent: make(chan models.Command, 1)}
	conn := startWS(t, &service.Service{Query: &mockQuery{}, Commander: cmd}, broadcast.NewHub(0, nil), nil)
	readEnvelope(t, conn) // initialData

	msg := `{"type":"controlRelay","data":{"target":"NODE2","relay":true}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.Type != broadcast.TypeCommandSent {
		t.Fatalf("want commandSent, got %+v", env)
	}
	var res struct {
		Success bool           `json:"success"`
		Command models.Command `json:"command"`
	}
	_ = json.Unmarshal(env.Data, &res)
	if !res.Success || res.Command.Target != "NODE2" {
		t.Fatalf("unexpected result %+v", res)
	}

	select {
	case got := <-cmd.sent:
		if got.Target != "NODE2" || got.Relay == nil || !*got.Relay {
			t.Fatalf("unexpected command %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("command never reached the commander")
	}
}

func TestWebSocket_ControlRelayErrors(t *testing.T) {
	cases := []struct {
		name    string
		auth    service.Authorization
		query   url.Values
		sendErr error
		msg     string
		want    string
		wantMsg string
	}{
		{
			name:    "transport down",
			sendErr: service.ErrTransportUnavailable,
			msg:     `{"type":"controlRelay","data":{"target":"NODE1","relay":true}}`,
			want:    broadcast.TypeCommandError,
			wantMsg: "transport unavailable",
		},
		{
			name:    "missing token",
			auth:    &mockAuth{},
			msg:     `{"type":"controlRelay","data":{"target":"NODE1","relay":true}}`,
			want:    broadcast.TypeCommandError,
			wantMsg: errUnauthorized.Error(),
		},
		{
			name:    "rejected token",
			auth:    &mockAuth{parseErr: errors.New("expired")},
			query:   url.Values{"token": {"old"}},
			msg:     `{"type":"controlRelay","data":{"target":"NODE1","relay":true}}`,
			want:    broadcast.TypeCommandError,
			wantMsg: errUnauthorized.Error(),
		},
		{
			name: "unknown type",
			msg:  `{"type":"reboot"}`,
			want: broadcast.TypeError,
		},
		{
			name: "garbage",
			msg:  `not json`,
			want: broadcast.TypeError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := &mockCommander{sendErr: tc.sendErr}
			s := &service.Service{Query: &mockQuery{}, Commander: cmd, Authorization: tc.auth}
			conn := startWS(t, s, broadcast.NewHub(0, nil), tc.query)
			readEnvelope(t, conn)

			if err := conn.WriteMessage(websocket.TextMessage, []byte(tc.msg)); err != nil {
				t.Fatalf("write: %v", err)
			}
			env := readEnvelope(t, conn)
			if env.Type != tc.want {
				t.Fatalf("want %s, got %+v", tc.want, env)
			}
			if tc.wantMsg == "" {
				return
			}
			var res struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
			}
			_ = json.Unmarshal(env.Data, &res)
			if res.Success || res.Message != tc.wantMsg {
				t.Fatalf("unexpected result %+v", res)
			}
		})
	}
}

func TestWebSocket_ControlRelayWithToken(t *testing.T) {
	auth := &mockAuth{parseID: 1}
	cmd := &mockCommander{sent: make(chan models.Command, 1)}
	s := &service.Service{Query: &mockQuery{}, Commander: cmd, Authorization: auth}
	conn := startWS(t, s, broadcast.NewHub(0, nil), url.Values{"token": {"good"}})
	readEnvelope(t, conn)

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"controlRelay","data":{"target":"NODE1","auto":true}}`))
	if env := readEnvelope(t, conn); env.Type != broadcast.TypeCommandSent {
		t.Fatalf("want commandSent, got %+v", env)
	}
	select {
	case got := <-cmd.sent:
		if got.Auto == nil || !*got.Auto {
			t.Fatalf("unexpected command %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("command never reached the commander")
	}
}

func TestWebSocket_DisconnectUnregisters(t *testing.T) {
	hub := broadcast.NewHub(0, nil)
	conn := startWS(t, &service.Service{Query: &mockQuery{}, Commander: &mockCommander{}}, hub, nil)
	readEnvelope(t, conn)
	waitForClients(t, hub, 1)

	_ = conn.Close()
	waitForClients(t, hub, 0)
}
