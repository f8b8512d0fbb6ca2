package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"madrasah/internal/auth"
	"madrasah/internal/dispatch"
	"madrasah/internal/enrollment"
)

func (s *Server) enrollmentAction(c *gin.Context, claims auth.Claims, env dispatch.Envelope) (any, error) {
	ctx := c.Request.Context()
	switch env.Action {
	case enrollment.ActionEnroll:
		in, err := decode[enrollment.EnrollInput](env)
		if err != nil {
			return nil, err
		}
		return s.enrollment.Enroll(ctx, in, claims.Subject)
	case enrollment.ActionApprove, enrollment.ActionReject:
		if claims.Role != auth.RoleAdmin {
			return nil, forbidden("only admins decide enrollments")
		}
		in, err := decode[enrollment.DecisionInput](env)
		if err != nil {
			return nil, err
		}
		if env.Action == enrollment.ActionApprove {
			return s.enrollment.Approve(ctx, in, claims.Subject)
		}
		return s.enrollment.Reject(ctx, in, claims.Subject)
	case enrollment.ActionWithdraw:
		in, err := decode[enrollment.DecisionInput](env)
		if err != nil {
			return nil, err
		}
		return s.enrollment.Withdraw(ctx, in, claims.Subject)
	}
	return nil, unknownAction(env.Action)
}

func (s *Server) listEnrollment(c *gin.Context) {
	cands, err := s.enrollment.List(c.Request.Context(), c.Param("classID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if cands == nil {
		cands = []enrollment.Candidate{}
	}
	s.respond(c, http.StatusOK, cands)
}
