package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/skygrid/roomdir-server/internal/core"
	"github.com/skygrid/roomdir-server/internal/proto"
	"github.com/skygrid/roomdir-server/internal/utils"
)

// RoomHandlers provides the REST directory endpoints, for clients that do
// not hold a live websocket stream (one-shot tooling, the sim server's
// leave callback).
type RoomHandlers struct {
	reg *core.Registry
	neg *core.Negotiator
	log *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(reg *core.Registry, neg *core.Negotiator, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		reg: reg,
		neg: neg,
		log: logger,
	}
}

// CreateRoomRequest represents the create room request body. A present but
// empty password still makes the room password-protected.
type CreateRoomRequest struct {
	Name        string  `json:"name" binding:"required,min=1,max=64"`
	Description string  `json:"description" binding:"max=256"`
	Password    *string `json:"password"`
	MaxClients  int     `json:"max_clients" binding:"gte=0"`
}

// JoinRoomRequest represents the join request body.
type JoinRoomRequest struct {
	Password *string `json:"password"`
	Identity string  `json:"identity"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// CreateRoom handles custom room creation.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeValidation})
		return
	}

	view, err := h.reg.Create(core.RoomTypeCustom, core.RoomOptions{
		Name:        req.Name,
		Description: req.Description,
		Password:    req.Password,
		MaxClients:  req.MaxClients,
		AutoDispose: true,
	})
	if err != nil {
		h.writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, roomToProto(view))
}

// ListRooms handles listing joinable rooms.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	views := h.reg.ListPublic()
	response := make([]proto.Room, 0, len(views))
	for _, view := range views {
		response = append(response, roomToProto(view))
	}
	c.JSON(http.StatusOK, response)
}

// JoinRoom runs a one-shot join negotiation for the room in the path.
// POST /api/rooms/:id/join
func (h *RoomHandlers) JoinRoom(c *gin.Context) {
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid join room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeValidation})
		return
	}

	identity := req.Identity
	if identity == "" {
		identity = "rest-" + utils.NewID()
	}

	grant, err := h.neg.Negotiate(c.Request.Context(), core.JoinIntent{
		RoomID: c.Param("id"),
		Secret: req.Password,
	}, identity)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, grantToProto(grant))
}

// LeaveRoom releases one client slot for the room in the path. The sim
// server calls this when a directly-joined client departs.
// POST /api/rooms/:id/leave
func (h *RoomHandlers) LeaveRoom(c *gin.Context) {
	h.reg.DecrementClients(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (h *RoomHandlers) writeDomainError(c *gin.Context, err error) {
	var de *core.DomainError
	if !errors.As(err, &de) {
		h.log.Error().Err(err).Msg("internal error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	status := http.StatusInternalServerError
	switch de.Code {
	case core.ErrCodeValidation, core.ErrCodeBadRequest:
		status = http.StatusBadRequest
	case core.ErrCodeRoomNotFound:
		status = http.StatusNotFound
	case core.ErrCodePasswordRequired:
		status = http.StatusUnauthorized
	case core.ErrCodeIncorrectPassword:
		status = http.StatusForbidden
	case core.ErrCodeRoomFull:
		status = http.StatusConflict
	case core.ErrCodeConnection:
		status = http.StatusBadGateway
	}
	c.JSON(status, ErrorResponse{Error: de.Message, Code: de.Code})
}
