package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yourusername/mc-server-panel/internal/api/middleware"
	"github.com/yourusername/mc-server-panel/internal/config"
	"github.com/yourusername/mc-server-panel/internal/console"
	"github.com/yourusername/mc-server-panel/internal/logging"
	"github.com/yourusername/mc-server-panel/internal/models"
	"github.com/yourusername/mc-server-panel/internal/server"
	ws "github.com/yourusername/mc-server-panel/internal/websocket"
)

const backlogLines = 100

// ConsoleHandler streams the live console over websockets and accepts
// commands from connected clients
type ConsoleHandler struct {
	controller Controller
	store      *config.Store
	hub        *ws.Hub
	activity   *logging.ActivityLogger
	upgrader   websocket.Upgrader
	timeout    time.Duration
}

func NewConsoleHandler(controller Controller, store *config.Store, hub *ws.Hub, activity *logging.ActivityLogger, timeout time.Duration) *ConsoleHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ConsoleHandler{
		controller: controller,
		store:      store,
		hub:        hub,
		activity:   activity,
		upgrader:   buildUpgrader(store.Get().Security.CORS.AllowedOrigins),
		timeout:    timeout,
	}
}

// HandleConsoleWebSocket upgrades the request and joins the console room, or
// the status room with ?stream=status
func (h *ConsoleHandler) HandleConsoleWebSocket(c *gin.Context) {
	room := ws.RoomConsole
	if c.Query("stream") == ws.RoomStatus {
		room = ws.RoomStatus
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Console] Failed to upgrade WebSocket: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}

	client := &ws.Client{
		ID:       uuid.NewString(),
		Username: username(c),
		Conn:     conn,
		Room:     room,
		Send:     make(chan *ws.Message, 1024),
		Hub:      h.hub,
		Handle:   h.handleMessage,
	}
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	snapshot := h.controller.Snapshot()
	client.SendMessage(ws.TypeState, map[string]interface{}{"to": snapshot.State, "pid": snapshot.PID})
	if room == ws.RoomConsole {
		if lines, err := console.ReadTail(console.LogPath(h.store.Game()), backlogLines); err == nil {
			for _, line := range lines {
				client.SendMessage(ws.TypeConsoleLine, console.ParseLine(line))
			}
		}
	}

	go client.WritePump()
	client.ReadPump()
}

func (h *ConsoleHandler) handleMessage(client *ws.Client, msg *ws.Message) {
	if msg.Type != ws.TypeCommand {
		client.SendMessage(ws.TypeError, map[string]string{"error": "unsupported message type " + msg.Type})
		return
	}

	payload, _ := msg.Payload.(map[string]interface{})
	command, _ := payload["command"].(string)
	channel, _ := payload["channel"].(string)
	command = strings.TrimSpace(command)
	if command == "" {
		client.SendMessage(ws.TypeError, map[string]string{"error": "command is required"})
		return
	}

	ctx, cancel := context.WithTimeout(server.WithActor(context.Background(), client.Username), h.timeout)
	defer cancel()

	reply, err := h.controller.SendCommand(ctx, channel, command)
	if h.activity != nil {
		if logErr := h.activity.LogCommandExecute(client.Username, channel, command, reply, err); logErr != nil {
			log.Printf("[Console] Failed to record command: %v", logErr)
		}
	}

	response := models.CommandResponse{Success: err == nil, Output: reply, Channel: channel}
	if err != nil {
		_, body := errorResponse(err)
		response.Error = body.Error
	}
	client.SendMessage(ws.TypeReply, response)
}

func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.IsOriginAllowed(r.Header.Get("Origin"), allowedOrigins)
		},
	}
}
