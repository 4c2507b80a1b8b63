package handlers

import (
	"fmt"
	"net/http"
	"runtime"
	"strconv"

	"sensor_gateway/internal/models"
	"sensor_gateway/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	statusOK      = "ok"
	statusRunning = "running"
)

// RelayRequest is the body of POST /api/control/relay.
type RelayRequest struct {
	// Target node id
	Target string `json:"target" binding:"required" example:"NODE1"`
	// Switch the relay on or off; omit to leave it unchanged
	Relay *bool `json:"relay,omitempty" example:"true"`
	// true hands the relay back to the node's own control loop
	Auto *bool `json:"auto,omitempty"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Latest reading of every node
// @Tags         nodes
// @Produce      json
// @Success      200  {object}  ListResponse
// @Router       /api/nodes [get]
func (h *Handler) listNodes(c *gin.Context) {
	nodes, err := h.services.Nodes(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, err, "nodes_list_failed")
		return
	}
	respondList(c, len(nodes), nodes, nil)
}

// @Summary      Latest reading of one node
// @Tags         nodes
// @Produce      json
// @Param        id   path      string  true  "Node id"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  ErrorResponse
// @Router       /api/nodes/{id} [get]
func (h *Handler) getNode(c *gin.Context) {
	id := c.Param("id")
	node, err := h.services.Node(c.Request.Context(), id)
	if err != nil {
		h.logAndJSONError(c, err, "node_get_failed", "node", id)
		return
	}
	respondItem(c, node)
}

// @Summary      Reading history of one node
// @Description  Returns the newest `limit` readings that match, oldest first. Times compare against the reading's local HH:MM:SS.
// @Tags         history
// @Produce      json
// @Param        nodeId     query  string  true   "Node id"
// @Param        limit      query  int     false  "Max readings (default 100)"
// @Param        date       query  string  false  "Calendar date"  example(2025-03-01)
// @Param        startTime  query  string  false  "Inclusive lower bound"  example(08:00)
// @Param        endTime    query  string  false  "Inclusive upper bound"  example(18:00)
// @Success      200  {object}  ListResponse
// @Failure      400  {object}  ErrorResponse
// @Router       /api/history [get]
func (h *Handler) getHistory(c *gin.Context) {
	f := service.HistoryFilter{
		NodeID:    c.Query("nodeId"),
		Date:      c.Query("date"),
		StartTime: c.Query("startTime"),
		EndTime:   c.Query("endTime"),
	}
	if s := c.Query("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil {
			badRequest(c, fmt.Sprintf("invalid limit %q", s))
			return
		}
		f.Limit = limit
	}

	readings, err := h.services.History(c.Request.Context(), f)
	if err != nil {
		h.logAndJSONError(c, err, "history_query_failed", "node", f.NodeID)
		return
	}
	respondList(c, len(readings), readings, nil)
}

// @Summary      Daily statistics of every node
// @Description  Defaults to today when no date is given.
// @Tags         stats
// @Produce      json
// @Param        date  query  string  false  "Calendar date"  example(2025-03-01)
// @Success      200  {object}  ListResponse
// @Failure      400  {object}  ErrorResponse
// @Router       /api/daily-stats [get]
func (h *Handler) getDailyStats(c *gin.Context) {
	f := service.StatsFilter{Date: c.Query("date")}
	stats, err := h.services.DailyStats(c.Request.Context(), f)
	if err != nil {
		h.logAndJSONError(c, err, "daily_stats_query_failed")
		return
	}
	date := f.Date
	if date == "" {
		date = h.services.Today()
	}
	respondList(c, len(stats), stats, gin.H{"date": date})
}

// @Summary      Daily statistics of one node
// @Description  All days newest first, or one day when date is given.
// @Tags         stats
// @Produce      json
// @Param        nodeId  path   string  true   "Node id"
// @Param        date    query  string  false  "Calendar date"  example(2025-03-01)
// @Success      200  {object}  ListResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /api/daily-stats/{nodeId} [get]
func (h *Handler) getNodeDailyStats(c *gin.Context) {
	f := service.StatsFilter{NodeID: c.Param("nodeId"), Date: c.Query("date")}
	stats, err := h.services.DailyStats(c.Request.Context(), f)
	if err != nil {
		h.logAndJSONError(c, err, "node_daily_stats_query_failed", "node", f.NodeID, "date", f.Date)
		return
	}
	if f.Date != "" {
		respondItem(c, stats[0])
		return
	}
	respondList(c, len(stats), stats, nil)
}

// @Summary      Send a relay command
// @Tags         control
// @Accept       json
// @Produce      json
// @Param        body  body  RelayRequest  true  "Command"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      503  {object}  ErrorResponse
// @Router       /api/control/relay [post]
// @Security     BearerAuth
func (h *Handler) controlRelay(c *gin.Context) {
	var req RelayRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	cmd := models.Command{Target: req.Target, Relay: req.Relay, Auto: req.Auto}
	if err := h.services.Send(c.Request.Context(), cmd); err != nil {
		h.logAndJSONError(c, err, "relay_command_failed", "target", req.Target)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Command sent to " + cmd.Target,
		"command": cmd,
	})
}

// @Summary      Gateway status
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/status [get]
func (h *Handler) getStatus(c *gin.Context) {
	counts, err := h.services.Stats(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, err, "status_failed")
		return
	}
	clients := 0
	if h.hub != nil {
		clients = h.hub.Count()
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  statusRunning,
		"serialPort": gin.H{
			"path":     h.link.Path,
			"baudRate": h.link.BaudRate,
			"isOpen":   h.services.Connected(),
		},
		"nodes":            counts.Nodes,
		"historySize":      counts.History,
		"dailyStatsCount":  counts.DailyStats,
		"connectedClients": clients,
		"memory": gin.H{
			"heapUsed":  fmt.Sprintf("%d MB", mem.HeapAlloc>>20),
			"heapTotal": fmt.Sprintf("%d MB", mem.HeapSys>>20),
		},
		"uptime": fmt.Sprintf("%ds", int(service.Uptime().Seconds())),
	})
}
