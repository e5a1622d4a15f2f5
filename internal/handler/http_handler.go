package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/aFirmae/Scribe/internal/log"
	"github.com/aFirmae/Scribe/internal/response"
	"github.com/aFirmae/Scribe/internal/service"
)

// HTTPHandler serves the room CRUD API.
type HTTPHandler struct {
	roomService service.RoomService
}

func NewHTTPHandler(roomService service.RoomService) *HTTPHandler {
	return &HTTPHandler{roomService: roomService}
}

// RegisterRoutes registers all HTTP routes.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		rooms := api.Group("/rooms")
		{
			rooms.POST("", h.CreateRoom)
			rooms.POST("/validate", h.ValidateRoom)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(200, "OK")
	})
}

type createRoomRequest struct {
	Username string `json:"username"`
}

type createRoomResponse struct {
	RoomCode string `json:"room_code"`
	RoomName string `json:"room_name"`
}

// CreateRoom creates a new room with a fresh code and no members.
func (h *HTTPHandler) CreateRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind create room request")
		response.BadRequest(c, err.Error())
		return
	}

	room, err := h.roomService.CreateRoom(ctx, req.Username)
	if err != nil {
		if errors.Is(err, service.ErrEmptyUsername) {
			response.BadRequest(c, "username is required")
			return
		}
		l.Error().Err(err).Msg("failed to create room")
		response.InternalError(c, "failed to create room")
		return
	}

	response.Created(c, createRoomResponse{
		RoomCode: room.RoomCode,
		RoomName: room.RoomName,
	})
}

type validateRoomRequest struct {
	RoomCode string `json:"room_code"`
}

type validateRoomResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// ValidateRoom reports whether a room code exists and has space.
func (h *HTTPHandler) ValidateRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req validateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	err := h.roomService.ValidateRoom(ctx, req.RoomCode)
	switch {
	case err == nil:
		response.Success(c, validateRoomResponse{Valid: true})
	case errors.Is(err, service.ErrRoomNotFound):
		response.Success(c, validateRoomResponse{Valid: false, Reason: "Room not found"})
	case errors.Is(err, service.ErrRoomFull):
		response.Success(c, validateRoomResponse{Valid: false, Reason: "Room is full"})
	default:
		l.Error().Err(err).Msg("failed to validate room")
		response.InternalError(c, "failed to validate room")
	}
}
