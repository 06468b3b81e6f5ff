package ws

import (
	"context"
	"log"
	nethttp "net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wildshape/server"
	"wildshape/server/internal/net/intake"
	"wildshape/server/logging"
	lognetwork "wildshape/server/logging/network"
)

type HandlerConfig struct {
	Logger         *log.Logger
	Events         logging.Publisher
	SendQueueDepth int
}

// Handler upgrades HTTP requests into websocket sessions and pumps decoded
// commands into the hub.
type Handler struct {
	hub      *server.Hub
	logger   *log.Logger
	events   logging.Publisher
	upgrader websocket.Upgrader
	depth    int
}

func NewHandler(hub *server.Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	events := cfg.Events
	if events == nil {
		events = logging.NopPublisher()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:      hub,
		logger:   logger,
		events:   events,
		upgrader: upgrader,
		depth:    cfg.SendQueueDepth,
	}
}

// Handle runs one connection: upgrade, register with the hub, then read
// frames until the socket dies. A client may present its previous id on
// reconnect to take over its player; otherwise one is minted here so the
// session never logs under an empty identity.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	requestedID := r.URL.Query().Get("id")
	if requestedID == "" {
		requestedID = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed: %v", err)
		return
	}

	session := NewSession(requestedID, conn, h.depth, h.logger, h.events)
	playerID := h.hub.Connect(requestedID, session)

	conn.SetReadLimit(intake.MaxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.hub.Disconnect(playerID, "connection closed")
			session.Close()
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		cmd, err := intake.Decode(payload)
		if err != nil {
			h.logger.Printf("dropping frame from %s: %v", playerID, err)
			lognetwork.MessageDropped(context.Background(), h.events,
				logging.EntityRef{ID: playerID, Kind: logging.EntityKindPlayer},
				lognetwork.DroppedPayload{Reason: err.Error(), Bytes: len(payload)})
			continue
		}

		cmd.ActorID = playerID
		cmd.IssuedAt = time.Now()
		h.hub.Dispatch(playerID, cmd)
	}
}
