package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/roach88/authsync/internal/linking"
	"github.com/roach88/authsync/internal/match"
	"github.com/roach88/authsync/internal/model"
)

type linksBody struct {
	Links        []model.Link `json:"links"`
	TotalRecords int          `json:"totalRecords"`
}

type countRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required"`
}

type linkCount struct {
	ID         uuid.UUID `json:"id"`
	TotalLinks int       `json:"totalLinks"`
}

type marcRecord struct {
	Fields []model.Field `json:"fields"`
}

type suggestBody struct {
	Records []marcRecord `json:"records"`
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeValidation, "invalid id", gin.H{"id": c.Param("id")})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) getInstanceLinks(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	t, ok := s.tenantServices(c)
	if !ok {
		return
	}
	links, err := t.Links.GetInstanceLinks(c.Request.Context(), id)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, linksBody{Links: links, TotalRecords: len(links)})
}

func (s *Server) updateInstanceLinks(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body linksBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, CodeValidation, "invalid request body", gin.H{"reason": err.Error()})
		return
	}
	for i, l := range body.Links {
		if l.InstanceID != uuid.Nil && l.InstanceID != id {
			respondError(c, http.StatusUnprocessableEntity, CodeValidation, "link belongs to another instance", gin.H{"index": i})
			return
		}
	}
	t, ok := s.tenantServices(c)
	if !ok {
		return
	}
	if _, err := t.Links.UpdateInstanceLinks(c.Request.Context(), id, body.Links); err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) countLinks(c *gin.Context) {
	var req countRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeValidation, "invalid request body", gin.H{"reason": err.Error()})
		return
	}
	t, ok := s.tenantServices(c)
	if !ok {
		return
	}
	counts, err := t.Links.CountLinks(c.Request.Context(), req.IDs)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	out := make([]linkCount, len(req.IDs))
	for i, id := range req.IDs {
		out[i] = linkCount{ID: id, TotalLinks: counts[id]}
	}
	c.JSON(http.StatusOK, gin.H{"links": out})
}

// suggestLinks evaluates MARC bib records. Query parameters:
// authoritySearchParameter (NATURAL_ID or ID; unset takes $9 when it parses,
// else $0) and ignoreAutoLinkingEnabled.
func (s *Server) suggestLinks(c *gin.Context) {
	var body suggestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, CodeValidation, "invalid request body", gin.H{"reason": err.Error()})
		return
	}
	var opts linking.SuggestOptions
	switch p := c.Query("authoritySearchParameter"); match.SearchBy(p) {
	case match.SearchByAny, match.SearchByID, match.SearchByNaturalID:
		opts.SearchBy = match.SearchBy(p)
	default:
		respondError(c, http.StatusBadRequest, CodeValidation, "invalid authoritySearchParameter", gin.H{"value": p})
		return
	}
	if v := c.Query("ignoreAutoLinkingEnabled"); v != "" {
		ignore, err := strconv.ParseBool(v)
		if err != nil {
			respondError(c, http.StatusBadRequest, CodeValidation, "invalid ignoreAutoLinkingEnabled", gin.H{"value": v})
			return
		}
		opts.IgnoreAutoLinking = ignore
	}

	t, ok := s.tenantServices(c)
	if !ok {
		return
	}
	out := suggestBody{Records: make([]marcRecord, len(body.Records))}
	for i, rec := range body.Records {
		fields, err := t.Links.Suggest(c.Request.Context(), rec.Fields, opts)
		if err != nil {
			s.respondServiceError(c, err)
			return
		}
		out.Records[i] = marcRecord{Fields: fields}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) listRules(c *gin.Context) {
	rs, err := s.app.Rules().ListRules(c.Request.Context())
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rs)
}

func (s *Server) getRule(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeValidation, "invalid rule id", gin.H{"id": c.Param("id")})
		return
	}
	rs, err := s.app.Rules().ListRules(c.Request.Context())
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	for _, r := range rs {
		if r.ID == id {
			c.JSON(http.StatusOK, r)
			return
		}
	}
	respondError(c, http.StatusNotFound, CodeNotFound, "linking rule not found", gin.H{"id": id})
}
