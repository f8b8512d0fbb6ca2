package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"madrasah/internal/auth"
	"madrasah/internal/dispatch"
	"madrasah/internal/optimistic"
	"madrasah/internal/resource"
)

// resourceAction serves both the admin and the teacher library screens.
// Teachers may only change resources they uploaded.
func (s *Server) resourceAction(c *gin.Context, claims auth.Claims, env dispatch.Envelope) (any, error) {
	ctx := c.Request.Context()
	switch env.Action {
	case resource.ActionCreate:
		in, err := decode[resource.CreateInput](env)
		if err != nil {
			return nil, err
		}
		return s.resources.Create(ctx, in, claims.Subject)
	case resource.ActionTogglePublic:
		in, err := decode[resource.TogglePublicInput](env)
		if err != nil {
			return nil, err
		}
		if err := s.canEdit(c, claims, in.ID); err != nil {
			return nil, err
		}
		return s.resources.TogglePublic(ctx, in)
	case resource.ActionRename:
		in, err := decode[resource.RenameInput](env)
		if err != nil {
			return nil, err
		}
		if err := s.canEdit(c, claims, in.ID); err != nil {
			return nil, err
		}
		return s.resources.Rename(ctx, in)
	case resource.ActionDelete:
		in, err := decode[resource.DeleteInput](env)
		if err != nil {
			return nil, err
		}
		if err := s.canEdit(c, claims, in.ID); err != nil {
			return nil, err
		}
		return nil, s.resources.Delete(ctx, in)
	}
	return nil, unknownAction(env.Action)
}

func (s *Server) canEdit(c *gin.Context, claims auth.Claims, id string) error {
	if claims.Role == auth.RoleAdmin {
		return nil
	}
	rec, err := s.resources.Get(c.Request.Context(), id)
	if err != nil {
		return err
	}
	if rec.UploadedBy != claims.Subject {
		return forbidden("teachers may only change their own resources")
	}
	return nil
}

func (s *Server) uploadResource(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, resource.MaxUploadBytes+1<<20)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		s.fail(c, optimistic.NewError(optimistic.KindValidation, "file field required"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, resource.MaxUploadBytes+1))
	if err != nil {
		s.fail(c, err)
		return
	}

	rec, err := s.resources.Upload(c.Request.Context(), resource.UploadInput{
		Title:    c.PostForm("title"),
		Filename: header.Filename,
		ClassID:  c.PostForm("class_id"),
		IsPublic: c.PostForm("is_public") == "true",
		Data:     data,
	}, claims.Subject)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusCreated, rec)
}

// listResources shows parents and students public resources only.
func (s *Server) listResources(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	f := resource.ListFilter{
		ClassID:    c.Query("class_id"),
		PublicOnly: c.Query("public") == "true" || !claims.Role.Staff(),
	}
	recs, err := s.resources.List(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	if recs == nil {
		recs = []resource.Record{}
	}
	s.respond(c, http.StatusOK, recs)
}
