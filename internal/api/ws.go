package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"madrasah/internal/auth"
)

// serveWS attaches the caller to the notification push hub.
func (s *Server) serveWS(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	if err := s.hub.Serve(c.Writer, c.Request, claims.Subject); err != nil {
		s.log.Warn("websocket upgrade failed", zap.String("user_id", claims.Subject), zap.Error(err))
	}
}
