package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/roach88/authsync/internal/change"
	"github.com/roach88/authsync/internal/event"
	"github.com/roach88/authsync/internal/model"
	"github.com/roach88/authsync/internal/tenant"
)

func bindBody(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		respondError(c, http.StatusBadRequest, CodeValidation, "invalid request body", gin.H{"reason": err.Error()})
		return false
	}
	return true
}

func (s *Server) createAuthority(c *gin.Context) {
	var a model.Authority
	if !bindBody(c, &a) {
		return
	}
	t, ok := s.tenantServices(c)
	if !ok {
		return
	}
	created, err := t.Authorities.CreateAuthority(c.Request.Context(), a)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) getAuthority(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	t, ok := s.tenantServices(c)
	if !ok {
		return
	}
	a, err := t.Authorities.GetAuthority(c.Request.Context(), id)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// updateAuthority requires the _version the caller read; a stale version is
// answered with 409.
func (s *Server) updateAuthority(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var a model.Authority
	if !bindBody(c, &a) {
		return
	}
	if a.ID != uuid.Nil && a.ID != id {
		respondError(c, http.StatusBadRequest, CodeValidation, "id in body does not match path", nil)
		return
	}
	a.ID = id
	t, ok := s.tenantServices(c)
	if !ok {
		return
	}
	if _, err := t.Authorities.UpdateAuthority(c.Request.Context(), a, false); err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteAuthority(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	t, ok := s.tenantServices(c)
	if !ok {
		return
	}
	if err := t.Authorities.DeleteAuthority(c.Request.Context(), id); err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type authorityEvent struct {
	Type event.Type      `json:"type" binding:"required"`
	Old  model.Authority `json:"old"`
	New  model.Authority `json:"new"`
}

// enqueueAuthorityEvent accepts an authority change made elsewhere and hands
// it to the change consumer.
func (s *Server) enqueueAuthorityEvent(c *gin.Context) {
	var body authorityEvent
	if !bindBody(c, &body) {
		return
	}
	switch body.Type {
	case event.TypeUpdate:
		if body.New.ID == uuid.Nil || body.Old.ID != body.New.ID {
			respondError(c, http.StatusUnprocessableEntity, CodeValidation, "UPDATE needs old and new versions of one authority", nil)
			return
		}
	case event.TypeDelete:
		if body.Old.ID == uuid.Nil {
			respondError(c, http.StatusUnprocessableEntity, CodeValidation, "DELETE needs the old authority", nil)
			return
		}
	default:
		respondError(c, http.StatusUnprocessableEntity, CodeValidation, "unknown event type", gin.H{"type": body.Type})
		return
	}
	id, _ := tenant.FromContext(c.Request.Context())
	if !s.app.Consumer().Enqueue(id, change.Event{Type: body.Type, Old: body.Old, New: body.New}) {
		respondError(c, http.StatusServiceUnavailable, CodeUnavailable, "change consumer stopped", nil)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) createSourceFile(c *gin.Context) {
	var sf model.SourceFile
	if !bindBody(c, &sf) {
		return
	}
	t, ok := s.tenantServices(c)
	if !ok {
		return
	}
	created, err := t.Authorities.CreateSourceFile(c.Request.Context(), sf)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) listSourceFiles(c *gin.Context) {
	t, ok := s.tenantServices(c)
	if !ok {
		return
	}
	files, err := t.Authorities.ListSourceFiles(c.Request.Context())
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authoritySourceFiles": files, "totalRecords": len(files)})
}

func (s *Server) getSourceFile(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	t, ok := s.tenantServices(c)
	if !ok {
		return
	}
	sf, err := t.Authorities.GetSourceFile(c.Request.Context(), id)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sf)
}

func (s *Server) updateSourceFile(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var sf model.SourceFile
	if !bindBody(c, &sf) {
		return
	}
	sf.ID = id
	t, ok := s.tenantServices(c)
	if !ok {
		return
	}
	if _, err := t.Authorities.UpdateSourceFile(c.Request.Context(), sf, false); err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteSourceFile(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	t, ok := s.tenantServices(c)
	if !ok {
		return
	}
	if err := t.Authorities.DeleteSourceFile(c.Request.Context(), id); err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
