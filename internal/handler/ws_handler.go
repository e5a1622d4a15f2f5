package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aFirmae/Scribe/internal/config"
	"github.com/aFirmae/Scribe/internal/domain"
	"github.com/aFirmae/Scribe/internal/hub"
	"github.com/aFirmae/Scribe/internal/log"
	"github.com/aFirmae/Scribe/internal/service"
)

// WSHandler upgrades websocket connections and dispatches inbound
// frames to the room coordinator.
type WSHandler struct {
	hub      *hub.Hub
	service  service.RoomService
	wsCfg    config.WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(h *hub.Hub, svc service.RoomService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes registers the websocket endpoint.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades the connection and starts the read/write
// pumps. Each connection gets a fresh session handle.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Ctx(c.Request.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleMessage, h.onDisconnect)
}

func (h *WSHandler) handleMessage(c *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		c.SendMessage(domain.NewErrorMessage("Invalid message format"))
		return
	}

	ctx := context.Background()
	l := log.L().With().Str(log.FieldSession, c.ID).Str(log.FieldEvent, base.Type).Logger()

	switch base.Type {
	case domain.MsgTypeJoinRoom:
		var msg domain.JoinRoomMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.SendMessage(domain.NewErrorMessage("Invalid join_room message"))
			return
		}
		if err := h.service.HandleJoinRoom(ctx, c, msg.RoomCode, msg.Username); err != nil {
			l.Warn().Err(err).Msg("join room failed")
		}

	case domain.MsgTypeSendMessage:
		var msg domain.SendMessageMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.SendMessage(domain.NewErrorMessage("Invalid send_message message"))
			return
		}
		if err := h.service.HandleSendMessage(ctx, c, msg.Message); err != nil {
			l.Warn().Err(err).Msg("send message failed")
		}

	case domain.MsgTypeHostAction:
		var msg domain.HostActionMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.SendMessage(domain.NewErrorMessage("Invalid host_action message"))
			return
		}
		if err := h.service.HandleHostAction(ctx, c, msg.Action, msg.Payload); err != nil {
			l.Warn().Err(err).Msg("host action failed")
		}

	case domain.MsgTypePing:
		c.SendMessage(&domain.BaseMessage{Type: domain.EventPong})

	default:
		c.SendMessage(domain.NewErrorMessage("Unknown message type"))
	}
}

func (h *WSHandler) onDisconnect(c *hub.Client) {
	if err := h.service.HandleDisconnect(context.Background(), c); err != nil {
		log.L().Warn().Err(err).Str(log.FieldSession, c.ID).Msg("disconnect handling failed")
	}
}
