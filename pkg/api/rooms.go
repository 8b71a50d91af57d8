package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
	"github.com/ZentaChain/zentalk-collab/pkg/storage"
)

const defaultEventLimit = 100

// CreateRoomResponse carries the host claim of a new room
type CreateRoomResponse struct {
	RoomID       string `json:"roomId"`
	SessionToken string `json:"sessionToken"`
}

// JoinResponse carries the token to poll for the host's decision
type JoinResponse struct {
	JoinToken string `json:"joinToken"`
}

// SessionResponse carries a guest claim
type SessionResponse struct {
	SessionToken string `json:"sessionToken"`
}

// EventsResponse lists a room's audit events, newest first
type EventsResponse struct {
	RoomID string          `json:"roomId"`
	Events []storage.Event `json:"events"`
}

func currentUser(c *gin.Context) protocol.User {
	return c.MustGet(userKey).(protocol.User)
}

func (s *Server) handleCreateRoom(c *gin.Context) {
	user := currentUser(c)
	roomID, claim, err := s.creds.CreateRoom(user)
	if err != nil {
		s.log.Error("failed to issue host claim", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to create room"})
		return
	}
	c.JSON(http.StatusCreated, CreateRoomResponse{RoomID: roomID, SessionToken: claim})
}

func (s *Server) handleJoin(c *gin.Context) {
	roomID := c.Param("id")
	if s.relay == nil || s.relay.Rooms().Get(roomID) == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}

	token, err := s.creds.StartJoin(roomID, currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to start join", Message: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, JoinResponse{JoinToken: token})
}

func (s *Server) handlePollJoin(c *gin.Context) {
	claim, err := s.creds.GetJoin(c.Request.Context(), c.Param("id"), c.Param("token"))
	if err != nil {
		s.pollError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{SessionToken: claim})
}

func (s *Server) handleRoomEvents(c *gin.Context) {
	if s.events == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "audit log disabled"})
		return
	}

	limit := defaultEventLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	roomID := c.Param("id")
	events, err := s.events.RoomEvents(c.Request.Context(), roomID, limit)
	if err != nil {
		s.log.Error("failed to read events", zap.Error(err), zap.String("room", roomID))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read events"})
		return
	}
	if events == nil {
		events = []storage.Event{}
	}
	c.JSON(http.StatusOK, EventsResponse{RoomID: roomID, Events: events})
}
