package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facefind/internal/auth"
	"github.com/your-org/facefind/internal/models"
	"github.com/your-org/facefind/internal/service"
	"github.com/your-org/facefind/pkg/dto"
)

type DuplicateHandler struct {
	svc *service.Service
}

func NewDuplicateHandler(svc *service.Service) *DuplicateHandler {
	return &DuplicateHandler{svc: svc}
}

// Find lists duplicate groups among the caller's files, or among another
// uploader's files when uploader_id names them.
func (h *DuplicateHandler) Find(c *gin.Context) {
	var q dto.DuplicateQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	caller := auth.Caller(c)
	if q.UploaderID != "" && q.UploaderID != caller {
		c.JSON(http.StatusForbidden, gin.H{"error": models.ErrUnauthorized.Error()})
		return
	}

	res, err := h.svc.FindDuplicates(c.Request.Context(), models.FileFilter{Scope: q.Scope, UploaderID: caller})
	if err != nil {
		respondError(c, err)
		return
	}

	groups := make([]dto.DuplicateGroup, 0, len(res.Groups))
	for _, g := range res.Groups {
		pairs := make([]dto.PairScore, 0, len(g.Pairs))
		for _, p := range g.Pairs {
			pairs = append(pairs, dto.PairScore{A: p.A, B: p.B, Similarity: p.Similarity})
		}
		groups = append(groups, dto.DuplicateGroup{
			FileIDs:    g.FileIDs,
			Similarity: g.Similarity,
			Pairs:      pairs,
			Paths:      g.Paths,
			Reason:     g.Reason,
		})
	}
	c.JSON(http.StatusOK, dto.DuplicatesResponse{Groups: groups, Total: len(groups), Reason: res.Reason})
}

// Delete removes the chosen duplicates and reports the ids actually deleted.
func (h *DuplicateHandler) Delete(c *gin.Context) {
	var req dto.DeleteFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deleted, err := h.svc.DeleteDuplicates(c.Request.Context(), auth.Caller(c), req.FileIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.DeleteFilesResponse{DeletedFileIDs: deleted})
}
