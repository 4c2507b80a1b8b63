package handlers

import (
	"context"
	"net/http"

	"sensor_gateway/internal/broadcast"
	"sensor_gateway/internal/models"
	"sensor_gateway/internal/service"
	"sensor_gateway/internal/store"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockQuery struct {
	nodes   []models.Reading
	node    models.Reading
	nodeErr error
	history []models.Reading
	histErr error
	recent  []models.Reading
	stats   []models.DailyStat
	statErr error
	counts  store.Counts
	today   string

	lastNode    string
	lastHistory service.HistoryFilter
	lastStats   service.StatsFilter
	lastRecent  int
}

func (m *mockQuery) Nodes(ctx context.Context) ([]models.Reading, error) {
	return m.nodes, nil
}
func (m *mockQuery) Node(ctx context.Context, id string) (models.Reading, error) {
	m.lastNode = id
	return m.node, m.nodeErr
}
func (m *mockQuery) History(ctx context.Context, f service.HistoryFilter) ([]models.Reading, error) {
	m.lastHistory = f
	return m.history, m.histErr
}
func (m *mockQuery) Recent(ctx context.Context, n int) ([]models.Reading, error) {
	m.lastRecent = n
	return m.recent, nil
}
func (m *mockQuery) DailyStats(ctx context.Context, f service.StatsFilter) ([]models.DailyStat, error) {
	m.lastStats = f
	return m.stats, m.statErr
}
func (m *mockQuery) Stats(ctx context.Context) (store.Counts, error) {
	return m.counts, nil
}
func (m *mockQuery) Today() string { return m.today }

type mockCommander struct {
	sendErr   error
	connected bool
	sent      chan models.Command
	lastSent  models.Command
	sendCalls int
}

func (m *mockCommander) Send(ctx context.Context, cmd models.Command) error {
	m.sendCalls++
	m.lastSent = cmd
	if m.sent != nil {
		m.sent <- cmd
	}
	return m.sendErr
}
func (m *mockCommander) Connected() bool { return m.connected }

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service, hub *broadcast.Hub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(s, hub, LinkInfo{Path: "/dev/ttyTEST", BaudRate: 9600}, nil)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
