package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ZentaChain/zentalk-collab/pkg/compression"
	"github.com/ZentaChain/zentalk-collab/pkg/encoding"
	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

// CapabilitiesResponse describes what the relay speaks
type CapabilitiesResponse struct {
	ProtocolVersion uint8    `json:"protocolVersion"`
	Transports      []string `json:"transports"`
	Encodings       []string `json:"encodings"`
	Compression     []string `json:"compression"`
}

// HealthResponse reports liveness and current load
type HealthResponse struct {
	Status string `json:"status"`
	Rooms  int    `json:"rooms"`
	Peers  int    `json:"peers"`
}

func (s *Server) handleCapabilities(c *gin.Context) {
	encodings := s.config.Encodings
	if len(encodings) == 0 {
		encodings = encoding.Names()
	}
	algs := s.config.Compression
	if len(algs) == 0 {
		algs = compression.Supported()
	}
	c.JSON(http.StatusOK, CapabilitiesResponse{
		ProtocolVersion: protocol.ProtocolVersion,
		Transports:      []string{"websocket"},
		Encodings:       encodings,
		Compression:     algs,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{Status: "ok"}
	if s.relay != nil {
		resp.Rooms = s.relay.Rooms().Len()
		resp.Peers = s.relay.Peers().Len()
	}
	c.JSON(http.StatusOK, resp)
}
