package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"madrasah/internal/auth"
	"madrasah/internal/dispatch"
	"madrasah/internal/notification"
	"madrasah/internal/optimistic"
)

// notificationAction only ever touches the caller's own items.
func (s *Server) notificationAction(c *gin.Context, claims auth.Claims, env dispatch.Envelope) (any, error) {
	ctx := c.Request.Context()
	switch env.Action {
	case notification.ActionMarkRead:
		in, err := decode[notification.MarkReadInput](env)
		if err != nil {
			return nil, err
		}
		return s.notify.MarkRead(ctx, claims.Subject, in)
	case notification.ActionMarkAllRead:
		in := notification.MarkAllReadInput{}
		if len(env.Data) > 0 && string(env.Data) != "null" {
			parsed, err := decode[notification.MarkAllReadInput](env)
			if err != nil {
				return nil, err
			}
			in = parsed
		}
		n, err := s.notify.MarkAllRead(ctx, claims.Subject, in)
		if err != nil {
			return nil, err
		}
		return gin.H{"updated": n}, nil
	}
	return nil, unknownAction(env.Action)
}

func (s *Server) createNotification(c *gin.Context) {
	var in notification.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.fail(c, optimistic.Errorf(optimistic.KindValidation, "invalid body: %v", err))
		return
	}
	it, err := s.notify.Create(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusCreated, it)
}

func (s *Server) listNotifications(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	unread := c.Query("unread") == "true"
	limit := 50
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	items, err := s.notify.List(c.Request.Context(), claims.Subject, unread, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if items == nil {
		items = []notification.Item{}
	}
	s.respond(c, http.StatusOK, items)
}

func (s *Server) unreadCount(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	n, err := s.notify.UnreadCount(c.Request.Context(), claims.Subject)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, gin.H{"unread": n})
}
