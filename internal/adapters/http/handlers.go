package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dkeye/Beam/internal/core"
	"github.com/dkeye/Beam/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type createSessionRequest struct {
	StreamID string `json:"streamId"`
	SDP      string `json:"sdp"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	AnswerSDP string `json:"answerSdp"`
	StreamID  string `json:"streamId"`
}

type sessionStatusResponse struct {
	SessionID      string    `json:"sessionId"`
	StreamID       string    `json:"streamId"`
	State          string    `json:"state"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

func (s *Server) createSession(c *gin.Context) {
	if !s.ProviderReady {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Provider API key not configured on server"})
		return
	}

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid JSON body"})
		return
	}
	if req.StreamID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "streamId is required"})
		return
	}

	sid, answer, err := s.Bridge.Negotiate(c.Request.Context(), domain.StreamID(req.StreamID), req.SDP)
	if err != nil {
		if errors.Is(err, core.ErrInvalidOffer) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Str("module", "adapters.http").Str("stream", req.StreamID).Msg("create session failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Bridge error: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, createSessionResponse{
		SessionID: string(sid),
		AnswerSDP: answer,
		StreamID:  req.StreamID,
	})
}

func (s *Server) getSession(c *gin.Context) {
	sid := domain.SessionID(c.Param("id"))
	sess, ok := s.Bridge.Lookup(sid)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, sessionStatusResponse{
		SessionID:      string(sess.ID),
		StreamID:       string(sess.StreamID),
		State:          string(sess.State()),
		CreatedAt:      sess.CreatedAt(),
		LastActivityAt: sess.LastActivityAt(),
	})
}

// deleteSession always answers 200: tearing down an absent or already
// closed session is a no-op, not an error.
func (s *Server) deleteSession(c *gin.Context) {
	s.Bridge.Stop(domain.SessionID(c.Param("id")))
	c.JSON(http.StatusOK, gin.H{"stopped": true})
}

func (s *Server) turnCreds(c *gin.Context) {
	if s.Creds == nil || !s.Creds.Configured() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "TURN secret not configured on server"})
		return
	}

	var ttl time.Duration
	if raw := c.Query("ttl"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ttl must be a positive integer"})
			return
		}
		ttl = time.Duration(n) * time.Second
	}

	// Configuration was checked above; anything failing here is the
	// issuer itself, not the operator.
	cred, err := s.Creds.Issue(ttl)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("credential generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "TURN credential generation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":      s.TurnURL,
		"username": cred.Username,
		"password": cred.Password,
		"ttl":      cred.TTLSeconds,
	})
}
