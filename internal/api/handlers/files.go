package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facefind/internal/auth"
	"github.com/your-org/facefind/internal/models"
	"github.com/your-org/facefind/internal/service"
	"github.com/your-org/facefind/pkg/dto"
)

type FileHandler struct {
	svc            *service.Service
	maxUploadBytes int64
}

func NewFileHandler(svc *service.Service, maxUploadBytes int64) *FileHandler {
	return &FileHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// Upload stores an event photo; extraction runs asynchronously.
func (h *FileHandler) Upload(c *gin.Context) {
	filename, data, ok := readUpload(c, "file", h.maxUploadBytes)
	if !ok {
		return
	}
	scope := c.PostForm("scope")
	if scope == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope is required"})
		return
	}

	f, err := h.svc.UploadFile(c.Request.Context(), auth.Caller(c), scope, filename, data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.FileUploadResponse{FileID: f.ID, Status: string(f.Status)})
}

func (h *FileHandler) List(c *gin.Context) {
	files, err := h.svc.ListFiles(c.Request.Context(), auth.Caller(c), c.Query("scope"))
	if err != nil {
		respondError(c, err)
		return
	}
	resp := make([]dto.FileResponse, 0, len(files))
	for i := range files {
		resp = append(resp, fileToResponse(&files[i]))
	}
	c.JSON(http.StatusOK, dto.FileListResponse{Files: resp, Total: len(resp)})
}

func (h *FileHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	f, err := h.svc.GetFile(c.Request.Context(), auth.Caller(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fileToResponse(f))
}

// Content streams the reassembled, checksum-verified file bytes.
func (h *FileHandler) Content(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	f, data, err := h.svc.FileContent(c.Request.Context(), auth.Caller(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, data)
}

func (h *FileHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteFile(c.Request.Context(), auth.Caller(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.DeleteFilesResponse{DeletedFileIDs: []int64{id}})
}

// DeleteBatch deletes several files and reports the ids actually deleted.
func (h *FileHandler) DeleteBatch(c *gin.Context) {
	var req dto.DeleteFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deleted, err := h.svc.DeleteFiles(c.Request.Context(), auth.Caller(c), req.FileIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.DeleteFilesResponse{DeletedFileIDs: deleted})
}

func fileToResponse(f *models.FileRecord) dto.FileResponse {
	return dto.FileResponse{
		ID:          f.ID,
		UploaderID:  f.UploaderID,
		Scope:       f.Scope,
		Filename:    f.Filename,
		ContentKey:  f.ContentKey,
		ContentHash: f.ContentHash,
		ContentType: f.ContentType,
		Size:        f.Size,
		Version:     f.Version,
		Status:      string(f.Status),
		FaceCount:   f.FaceCount,
		CreatedAt:   f.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   f.UpdatedAt.Format(time.RFC3339),
	}
}
