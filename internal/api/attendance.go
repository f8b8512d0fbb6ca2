package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"madrasah/internal/attendance"
	"madrasah/internal/auth"
	"madrasah/internal/dispatch"
)

func (s *Server) attendanceAction(c *gin.Context, claims auth.Claims, env dispatch.Envelope) (any, error) {
	ctx := c.Request.Context()
	switch env.Action {
	case attendance.ActionMark:
		in, err := decode[attendance.MarkInput](env)
		if err != nil {
			return nil, err
		}
		return s.attendance.Mark(ctx, in, claims.Subject)
	case attendance.ActionBulkMark:
		in, err := decode[attendance.BulkMarkInput](env)
		if err != nil {
			return nil, err
		}
		return s.attendance.BulkMark(ctx, in, claims.Subject)
	}
	return nil, unknownAction(env.Action)
}

func (s *Server) listAttendance(c *gin.Context) {
	recs, err := s.attendance.List(c.Request.Context(), c.Param("scheduleID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	s.respond(c, http.StatusOK, recs)
}

func (s *Server) attendanceSummary(c *gin.Context) {
	sum, err := s.attendance.Summary(c.Request.Context(), c.Param("scheduleID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, sum)
}
