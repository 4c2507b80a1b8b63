package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sensor_gateway/internal/broadcast"
	"sensor_gateway/internal/models"
	"sensor_gateway/internal/service"
	"sensor_gateway/internal/store"
)

func ptr[T any](v T) *T { return &v }

type listBody struct {
	Success bool            `json:"success"`
	Count   int             `json:"count"`
	Date    string          `json:"date"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func doJSON(t *testing.T, h http.Handler, method, path string, body string, header http.Header) (*httptest.ResponseRecorder, listBody) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out listBody
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal %s: %v (body=%s)", path, err, w.Body.String())
	}
	return w, out
}

func sampleReading(id string, temp float64) models.Reading {
	return models.Reading{
		ID:        id,
		Timestamp: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Temp:      ptr(temp),
		Hum:       ptr(50.0),
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&service.Service{}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || w.Body.String() != `{"status":"ok"}` {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}
}

func TestNodes_ListAndGet(t *testing.T) {
	q := &mockQuery{
		nodes: []models.Reading{sampleReading("NODE1", 20), sampleReading("NODE2", 21)},
		node:  sampleReading("NODE1", 20),
	}
	r := newTestRouter(&service.Service{Query: q}, nil)

	w, out := doJSON(t, r, http.MethodGet, "/api/nodes", "", nil)
	if w.Code != http.StatusOK || !out.Success || out.Count != 2 {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}

	w, out = doJSON(t, r, http.MethodGet, "/api/nodes/NODE1", "", nil)
	if w.Code != http.StatusOK || !out.Success {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}
	var got map[string]any
	_ = json.Unmarshal(out.Data, &got)
	if got["id"] != "NODE1" || got["temp"] != 20.0 {
		t.Fatalf("unexpected node: %v", got)
	}
	if q.lastNode != "NODE1" {
		t.Fatalf("Node called with %q", q.lastNode)
	}
}

func TestNodes_GetUnknownIs404(t *testing.T) {
	q := &mockQuery{nodeErr: fmt.Errorf("%w: node NOPE", service.ErrNotFound)}
	r := newTestRouter(&service.Service{Query: q}, nil)

	w, out := doJSON(t, r, http.MethodGet, "/api/nodes/NOPE", "", nil)
	if w.Code != http.StatusNotFound || out.Success || out.Error == "" {
		t.Fatalf("want 404 envelope, got %d %s", w.Code, w.Body.String())
	}
}

func TestHistory_PassesFilter(t *testing.T) {
	q := &mockQuery{history: []models.Reading{sampleReading("NODE1", 20)}}
	r := newTestRouter(&service.Service{Query: q}, nil)

	w, out := doJSON(t, r, http.MethodGet,
		"/api/history?nodeId=NODE1&limit=5&date=2025-03-01&startTime=08:00&endTime=18:00", "", nil)
	if w.Code != http.StatusOK || out.Count != 1 {
		t.Fatalf("history: %d %s", w.Code, w.Body.String())
	}
	want := service.HistoryFilter{NodeID: "NODE1", Limit: 5, Date: "2025-03-01", StartTime: "08:00", EndTime: "18:00"}
	if q.lastHistory != want {
		t.Fatalf("filter: got %+v, want %+v", q.lastHistory, want)
	}
}

func TestHistory_Errors(t *testing.T) {
	cases := []struct {
		name string
		url  string
		err  error
		code int
	}{
		{"bad limit", "/api/history?nodeId=NODE1&limit=ten", nil, http.StatusBadRequest},
		{"validation", "/api/history", fmt.Errorf("%w: nodeId is required", service.ErrValidation), http.StatusBadRequest},
		{"internal", "/api/history?nodeId=NODE1", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := &mockQuery{histErr: tc.err}
			r := newTestRouter(&service.Service{Query: q}, nil)

			w, out := doJSON(t, r, http.MethodGet, tc.url, "", nil)
			if w.Code != tc.code || out.Success {
				t.Fatalf("got %d %s, want %d", w.Code, w.Body.String(), tc.code)
			}
		})
	}
}

func TestHistory_InternalErrorHidesDetail(t *testing.T) {
	q := &mockQuery{histErr: fmt.Errorf("disk on fire")}
	r := newTestRouter(&service.Service{Query: q}, nil)

	_, out := doJSON(t, r, http.MethodGet, "/api/history?nodeId=NODE1", "", nil)
	if out.Error != "internal error" {
		t.Fatalf("error leaked: %q", out.Error)
	}
}

func TestDailyStats_DefaultsToToday(t *testing.T) {
	q := &mockQuery{
		today: "2025-03-01",
		stats: []models.DailyStat{{Date: "2025-03-01", NodeID: "NODE1", TempMax: 25, Count: 3}},
	}
	r := newTestRouter(&service.Service{Query: q}, nil)

	w, out := doJSON(t, r, http.MethodGet, "/api/daily-stats", "", nil)
	if w.Code != http.StatusOK || out.Count != 1 || out.Date != "2025-03-01" {
		t.Fatalf("daily-stats: %d %s", w.Code, w.Body.String())
	}
	if q.lastStats != (service.StatsFilter{}) {
		t.Fatalf("unexpected filter %+v", q.lastStats)
	}

	_, out = doJSON(t, r, http.MethodGet, "/api/daily-stats?date=2025-02-28", "", nil)
	if out.Date != "2025-02-28" || q.lastStats.Date != "2025-02-28" {
		t.Fatalf("explicit date not honored: %+v / %+v", out, q.lastStats)
	}
}

func TestNodeDailyStats(t *testing.T) {
	stats := []models.DailyStat{
		{Date: "2025-03-02", NodeID: "NODE1", TempMax: 26},
		{Date: "2025-03-01", NodeID: "NODE1", TempMax: 25},
	}
	q := &mockQuery{stats: stats}
	r := newTestRouter(&service.Service{Query: q}, nil)

	w, out := doJSON(t, r, http.MethodGet, "/api/daily-stats/NODE1", "", nil)
	if w.Code != http.StatusOK || out.Count != 2 {
		t.Fatalf("all days: %d %s", w.Code, w.Body.String())
	}

	q.stats = stats[1:]
	w, out = doJSON(t, r, http.MethodGet, "/api/daily-stats/NODE1?date=2025-03-01", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("one day: %d %s", w.Code, w.Body.String())
	}
	var one models.DailyStat
	if err := json.Unmarshal(out.Data, &one); err != nil {
		t.Fatalf("single object expected: %v (%s)", err, out.Data)
	}
	if one.Date != "2025-03-01" || one.TempMax != 25 {
		t.Fatalf("unexpected stat %+v", one)
	}
	if q.lastStats != (service.StatsFilter{NodeID: "NODE1", Date: "2025-03-01"}) {
		t.Fatalf("unexpected filter %+v", q.lastStats)
	}

	q.statErr = fmt.Errorf("%w: no statistics", service.ErrNotFound)
	w, _ = doJSON(t, r, http.MethodGet, "/api/daily-stats/NODE9", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", w.Code)
	}
}

func TestControlRelay(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		sendErr error
		code    int
	}{
		{"ok", `{"target":"NODE1","relay":true}`, nil, http.StatusOK},
		{"missing target", `{"relay":true}`, nil, http.StatusBadRequest},
		{"not json", `relay on`, nil, http.StatusBadRequest},
		{"empty command", `{"target":"NODE1"}`, fmt.Errorf("%w: nothing to send", service.ErrValidation), http.StatusBadRequest},
		{"link down", `{"target":"NODE1","auto":true}`, service.ErrTransportUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := &mockCommander{sendErr: tc.sendErr}
			r := newTestRouter(&service.Service{Commander: cmd}, nil)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/control/relay", bytes.NewBufferString(tc.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)
			if w.Code != tc.code {
				t.Fatalf("status %d, want %d (%s)", w.Code, tc.code, w.Body.String())
			}
		})
	}
}

func TestControlRelay_SuccessBody(t *testing.T) {
	cmd := &mockCommander{}
	r := newTestRouter(&service.Service{Commander: cmd}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/control/relay", bytes.NewBufferString(`{"target":"NODE1","relay":false}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var out struct {
		Success bool           `json:"success"`
		Message string         `json:"message"`
		Command models.Command `json:"command"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Success || out.Message != "Command sent to NODE1" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
	if out.Command.Relay == nil || *out.Command.Relay || out.Command.Auto != nil {
		t.Fatalf("unexpected command echo %+v", out.Command)
	}
	if cmd.lastSent.Target != "NODE1" || cmd.lastSent.Relay == nil || *cmd.lastSent.Relay {
		t.Fatalf("unexpected command sent %+v", cmd.lastSent)
	}
}

func TestControlRelay_RequiresTokenWhenAuthEnabled(t *testing.T) {
	cmd := &mockCommander{}
	auth := &mockAuth{parseID: 7}
	r := newTestRouter(&service.Service{Commander: cmd, Authorization: auth}, nil)

	w, _ := doJSON(t, r, http.MethodPost, "/api/control/relay", `{"target":"NODE1","relay":true}`, nil)
	if w.Code != http.StatusUnauthorized || cmd.sendCalls != 0 {
		t.Fatalf("want 401 without token, got %d (calls=%d)", w.Code, cmd.sendCalls)
	}

	w, _ = doJSON(t, r, http.MethodPost, "/api/control/relay", `{"target":"NODE1","relay":true}`, authHeader("tok"))
	if w.Code != http.StatusOK || cmd.sendCalls != 1 {
		t.Fatalf("want 200 with token, got %d (calls=%d)", w.Code, cmd.sendCalls)
	}
}

func TestStatus(t *testing.T) {
	q := &mockQuery{counts: store.Counts{Nodes: 2, History: 40, DailyStats: 3}}
	hub := broadcast.NewHub(0, nil)
	c := hub.Register()
	defer hub.Unregister(c)

	r := newTestRouter(&service.Service{Query: q, Commander: &mockCommander{connected: true}}, hub)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d %s", w.Code, w.Body.String())
	}

	var out struct {
		Success    bool   `json:"success"`
		Status     string `json:"status"`
		SerialPort struct {
			Path     string `json:"path"`
			BaudRate int    `json:"baudRate"`
			IsOpen   bool   `json:"isOpen"`
		} `json:"serialPort"`
		Nodes            int               `json:"nodes"`
		HistorySize      int               `json:"historySize"`
		DailyStatsCount  int               `json:"dailyStatsCount"`
		ConnectedClients int               `json:"connectedClients"`
		Memory           map[string]string `json:"memory"`
		Uptime           string            `json:"uptime"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Success || out.Status != "running" || !out.SerialPort.IsOpen || out.SerialPort.Path != "/dev/ttyTEST" {
		t.Fatalf("unexpected status %+v", out)
	}
	if out.Nodes != 2 || out.HistorySize != 40 || out.DailyStatsCount != 3 || out.ConnectedClients != 1 {
		t.Fatalf("unexpected counts %+v", out)
	}
	if out.Memory["heapUsed"] == "" || out.Uptime == "" {
		t.Fatalf("missing memory/uptime %+v", out)
	}
}
