package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-collab/pkg/credentials"
	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

// StartLoginResponse opens a login attempt
type StartLoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ConfirmLoginRequest completes a simple name based login
type ConfirmLoginRequest struct {
	Name     string `json:"name" binding:"required"`
	Provider string `json:"provider,omitempty"`
}

// ConfirmLoginResponse echoes the confirmed identity
type ConfirmLoginResponse struct {
	User protocol.User `json:"user"`
}

// PollLoginResponse carries the signed user claim
type PollLoginResponse struct {
	UserToken string `json:"userToken"`
}

// PendingResponse is returned with 202 while a poll is unresolved
type PendingResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleStartLogin(c *gin.Context) {
	token, expires := s.creds.StartAuth()
	c.JSON(http.StatusOK, StartLoginResponse{Token: token, ExpiresAt: expires})
}

func (s *Server) handleConfirmLogin(c *gin.Context) {
	var req ConfirmLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}
	provider := req.Provider
	if provider == "" {
		provider = "simple"
	}

	user, err := s.creds.ConfirmUser(c.Param("token"), req.Name, provider)
	if err != nil {
		s.pollError(c, err)
		return
	}
	c.JSON(http.StatusOK, ConfirmLoginResponse{User: *user})
}

func (s *Server) handlePollLogin(c *gin.Context) {
	claim, err := s.creds.GetAuth(c.Request.Context(), c.Param("token"))
	if err != nil {
		s.pollError(c, err)
		return
	}
	c.JSON(http.StatusOK, PollLoginResponse{UserToken: claim})
}

// pollError maps credential poll failures to HTTP statuses
func (s *Server) pollError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, credentials.ErrPending):
		c.JSON(http.StatusAccepted, PendingResponse{Status: "pending"})
	case errors.Is(err, credentials.ErrUnknownToken), errors.Is(err, credentials.ErrExpired):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown or expired token"})
	case errors.Is(err, credentials.ErrEmptyName):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, credentials.ErrSettled):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case c.Request.Context().Err() != nil:
		// client went away
		c.Status(http.StatusRequestTimeout)
	default:
		s.log.Debug("poll failed", zap.Error(err), zap.String("path", c.Request.URL.Path))
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "rejected", Message: err.Error()})
	}
}
