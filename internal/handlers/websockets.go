package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"sensor_gateway/internal/broadcast"
	"sensor_gateway/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMsgSize         = 1 << 12 // 4 KB
	initialHistorySize = 50
)

var errUnauthorized = errors.New("unauthorized: valid token required")

// Origins are enforced by the CORS layer in front of the router.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// initialData is the first message every push client receives.
type initialData struct {
	Nodes   []models.Reading `json:"nodes"`
	History []models.Reading `json:"history"`
}

type commandResult struct {
	Success bool            `json:"success"`
	Command *models.Command `json:"command,omitempty"`
	Message string          `json:"message,omitempty"`
}

func (h *Handler) wsConnect(c *gin.Context) {
	token := c.Query("token")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	client := h.hub.Register()
	defer h.hub.Unregister(client)

	// Configure read limits and pong handler to extend read deadline.
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := c.Request.Context()
	if err := h.sendInitialData(ctx, client); err != nil {
		if h.log != nil {
			h.log.Errorw("ws_initial_data_failed", "client", client.ID(), "err", err)
		}
		return
	}

	done := make(chan struct{})
	go h.startReader(ctx, conn, client, token, done)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	// Writer loop; the only goroutine that writes to conn.
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "client", client.ID(), "err", err)
				}
				return
			}
		case msg, ok := <-client.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub dropped a client that fell behind
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too slow"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "client", client.ID(), "err", err)
				}
				return
			}
		}
	}
}

// sendInitialData queues the current node states and the recent history.
func (h *Handler) sendInitialData(ctx context.Context, client *broadcast.Client) error {
	nodes, err := h.services.Nodes(ctx)
	if err != nil {
		return err
	}
	history, err := h.services.Recent(ctx, initialHistorySize)
	if err != nil {
		return err
	}
	env, err := broadcast.NewEnvelope(broadcast.TypeInitialData, initialData{Nodes: nodes, History: history})
	if err != nil {
		return err
	}
	h.hub.Send(client, env)
	return nil
}

// startReader handles client messages until the connection closes.
func (h *Handler) startReader(ctx context.Context, conn *websocket.Conn, client *broadcast.Client, token string, done chan<- struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "client", client.ID(), "err", err)
			}
			return
		}
		h.hub.Send(client, h.handleMessage(ctx, data, token))
	}
}

// handleMessage processes one client message and returns the reply.
func (h *Handler) handleMessage(ctx context.Context, data []byte, token string) broadcast.Envelope {
	var in broadcast.Envelope
	if err := json.Unmarshal(data, &in); err != nil {
		return broadcast.Envelope{Type: broadcast.TypeError, Error: "invalid message format"}
	}

	switch in.Type {
	case broadcast.TypeControlRelay:
		cmd, err := h.relayFromMessage(ctx, in.Data, token)
		if err != nil {
			if h.log != nil {
				h.log.Infow("ws_command_failed", "err", err)
			}
			return resultEnvelope(broadcast.TypeCommandError, commandResult{Message: err.Error()})
		}
		return resultEnvelope(broadcast.TypeCommandSent, commandResult{Success: true, Command: &cmd})
	default:
		return broadcast.Envelope{Type: broadcast.TypeError, Error: "unknown message type: " + in.Type}
	}
}

func (h *Handler) relayFromMessage(ctx context.Context, raw json.RawMessage, token string) (models.Command, error) {
	var cmd models.Command
	if h.authEnabled() {
		if token == "" {
			return cmd, errUnauthorized
		}
		if _, err := h.services.ParseToken(token); err != nil {
			return cmd, errUnauthorized
		}
	}
	if len(raw) == 0 {
		return cmd, errors.New("missing command data")
	}
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return cmd, errors.New("invalid command data")
	}
	if err := h.services.Send(ctx, cmd); err != nil {
		return cmd, err
	}
	return cmd, nil
}

func resultEnvelope(typ string, res commandResult) broadcast.Envelope {
	env, err := broadcast.NewEnvelope(typ, res)
	if err != nil {
		return broadcast.Envelope{Type: broadcast.TypeError, Error: err.Error()}
	}
	return env
}
