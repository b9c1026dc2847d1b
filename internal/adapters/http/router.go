package http

import (
	"context"

	"github.com/dkeye/Beam/internal/domain"
	"github.com/dkeye/Beam/internal/turncred"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Bridge is what the front door needs from the application layer.
type Bridge interface {
	Negotiate(ctx context.Context, streamID domain.StreamID, offerSDP string) (domain.SessionID, string, error)
	Stop(sid domain.SessionID)
	Lookup(sid domain.SessionID) (*domain.Session, bool)
}

// Server holds the handlers' collaborators. ProviderReady mirrors whether
// the provider API key was configured; the check happens per request so the
// error surfaces at the endpoint, not as a crash at boot.
type Server struct {
	Bridge        Bridge
	Creds         *turncred.Issuer
	TurnURL       string
	ProviderReady bool
}

func (s *Server) SetupRouter(mode string) *gin.Engine {
	if mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.POST("/create-session", s.createSession)
	r.GET("/sessions/:id", s.getSession)
	r.DELETE("/sessions/:id", s.deleteSession)
	r.GET("/turn/creds", s.turnCreds)

	log.Info().Str("module", "adapters.http").Bool("provider_ready", s.ProviderReady).Msg("router setup")
	return r
}
