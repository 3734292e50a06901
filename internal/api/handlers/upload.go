package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// readUpload reads one multipart file field, bounded by limit bytes. It
// must run before any form value is read so the body limit applies.
func readUpload(c *gin.Context, field string, limit int64) (string, []byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": field + " too large"})
			return "", nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return "", nil, false
	}

	file, header, err := c.Request.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " file required"})
		return "", nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read " + field + " failed"})
		return "", nil, false
	}
	if int64(len(data)) > limit {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": field + " too large"})
		return "", nil, false
	}
	return header.Filename, data, true
}
