package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facefind/internal/auth"
	"github.com/your-org/facefind/internal/service"
	"github.com/your-org/facefind/pkg/dto"
)

type FaceHandler struct {
	svc            *service.Service
	maxUploadBytes int64
}

func NewFaceHandler(svc *service.Service, maxUploadBytes int64) *FaceHandler {
	return &FaceHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// Upload accepts a multipart probe image and extracts its face embedding.
// No detected face is a 200 with face_detected=false, not an error.
func (h *FaceHandler) Upload(c *gin.Context) {
	filename, data, ok := readUpload(c, "image", h.maxUploadBytes)
	if !ok {
		return
	}
	scope := c.PostForm("scope")
	if scope == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope is required"})
		return
	}

	res, err := h.svc.UploadFace(c.Request.Context(), auth.Caller(c), scope, filename, data)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := dto.FaceUploadResponse{
		FaceID:       res.Face.ID,
		Scope:        res.Face.Scope,
		ContentKey:   res.Face.ContentKey,
		FaceDetected: res.Detected,
		FaceCount:    res.FaceCount,
		CreatedAt:    res.Face.CreatedAt.Format(time.RFC3339),
	}
	if !res.Detected {
		resp.Reason = service.ReasonNoFaceDetected
		c.JSON(http.StatusOK, resp)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Matches ranks the files of a scope against an uploaded face.
func (h *FaceHandler) Matches(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var q dto.MatchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.svc.MatchFace(c.Request.Context(), auth.Caller(c), id, q.Scope, q.Threshold)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]dto.MatchItem, 0, len(res.Matches))
	for _, m := range res.Matches {
		items = append(items, dto.MatchItem{FileID: m.Owner.ID, Score: m.Score, ContentKey: m.ContentKey})
	}
	c.JSON(http.StatusOK, dto.MatchResponse{
		FaceID:    res.FaceID,
		Scope:     res.Scope,
		Threshold: res.Threshold,
		Matches:   items,
		Total:     len(items),
		Reason:    res.Reason,
		Cached:    res.Cached,
	})
}

func (h *FaceHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteFace(c.Request.Context(), auth.Caller(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
