package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"madrasah/internal/auth"
	"madrasah/internal/dispatch"
	"madrasah/internal/idempotency"
	"madrasah/internal/optimistic"
)

// actionFunc runs one decoded action envelope for the caller.
type actionFunc func(c *gin.Context, claims auth.Claims, env dispatch.Envelope) (any, error)

// respond writes a success reply carrying v.
func (s *Server) respond(c *gin.Context, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(status, dispatch.Reply{Success: true, Data: raw})
}

// fail writes the error reply for err. Internal errors are logged and
// hidden from the caller.
func (s *Server) fail(c *gin.Context, err error) {
	status, reply := s.errorReply(c, err)
	c.AbortWithStatusJSON(status, reply)
}

func (s *Server) errorReply(c *gin.Context, err error) (int, dispatch.Reply) {
	kind := optimistic.KindOf(err)
	msg := err.Error()
	if kind == optimistic.KindInternal {
		s.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		msg = "internal error"
	}
	return dispatch.StatusForKind(kind), dispatch.Reply{Success: false, Error: msg, Kind: kind}
}

// decode unmarshals the envelope data into T.
func decode[T any](env dispatch.Envelope) (T, error) {
	var v T
	if len(env.Data) == 0 {
		return v, optimistic.NewError(optimistic.KindValidation, "data is required")
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, optimistic.Errorf(optimistic.KindValidation, "invalid data: %v", err)
	}
	return v, nil
}

// actions serves POST /v1/<entity>/actions. A request carrying a token
// already answered is given the saved reply without running again.
func (s *Server) actions(entity string, run actionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, _ := auth.ClaimsFrom(c)
		var env dispatch.Envelope
		if err := c.ShouldBindJSON(&env); err != nil {
			s.fail(c, optimistic.Errorf(optimistic.KindValidation, "invalid envelope: %v", err))
			return
		}
		if env.Action == "" {
			s.fail(c, optimistic.NewError(optimistic.KindValidation, "action is required"))
			return
		}

		key := ""
		if env.Token != "" && s.idem != nil {
			key = claims.Subject + ":" + entity + ":" + env.Token
			saved, err := s.idem.Begin(c.Request.Context(), key)
			switch {
			case errors.Is(err, idempotency.ErrInFlight):
				s.fail(c, err)
				return
			case err != nil:
				s.log.Warn("idempotency store unavailable", zap.Error(err))
				key = ""
			case saved != nil:
				s.replay(c, saved)
				return
			}
		}

		start := time.Now()
		data, err := run(c, claims, env)
		state := optimistic.Committed
		status, reply := http.StatusOK, dispatch.Reply{Success: true}
		if err != nil {
			state = optimistic.Rejected
			status, reply = s.errorReply(c, err)
		} else if data != nil {
			raw, merr := json.Marshal(data)
			if merr != nil {
				state = optimistic.Rejected
				status, reply = s.errorReply(c, merr)
			} else {
				reply.Data = raw
			}
		}
		if s.metrics != nil {
			s.metrics.ObserveMutation(entity, env.Action, state, time.Since(start))
		}

		raw, _ := json.Marshal(reply)
		if key != "" {
			// the client may already be gone; the token must still settle
			ctx := context.WithoutCancel(c.Request.Context())
			if reply.Kind == optimistic.KindInternal || reply.Kind == optimistic.KindTransport {
				// let the client retry with the same token
				if err := s.idem.Release(ctx, key); err != nil {
					s.log.Warn("idempotency token not released", zap.Error(err))
				}
			} else if err := s.idem.Finish(ctx, key, raw); err != nil {
				s.log.Warn("idempotency reply not saved", zap.Error(err))
			}
		}
		c.Data(status, "application/json; charset=utf-8", raw)
	}
}

func (s *Server) replay(c *gin.Context, saved []byte) {
	var reply dispatch.Reply
	if err := json.Unmarshal(saved, &reply); err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Idempotent-Replay", "true")
	c.Data(dispatch.StatusForKind(reply.Kind), "application/json; charset=utf-8", saved)
}

func unknownAction(action string) error {
	return optimistic.Errorf(optimistic.KindValidation, "unknown action %q", action)
}

func forbidden(msg string) error {
	return optimistic.NewError(optimistic.KindForbidden, msg)
}
