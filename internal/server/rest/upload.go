package rest

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/vidaccounts/internal/common"
	"github.com/dmitrijs2005/vidaccounts/internal/filex"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxUploadBytes = 10 << 20

// saveUpload stores the multipart file under field in the upload directory
// and returns its path, or "" when the field is absent.
func (s *HTTPServer) saveUpload(c *gin.Context, field string) (string, error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", common.InvalidArgument(fmt.Sprintf("%s: %v", field, err))
	}
	if fh.Size > maxUploadBytes {
		return "", common.InvalidArgument(field + ": file too large")
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	dst := filepath.Join(s.uploadDir, uuid.NewString()+ext)
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	return dst, nil
}

// removeUpload deletes a temp file the media store did not consume.
func (s *HTTPServer) removeUpload(c *gin.Context, path string) {
	if err := filex.RemoveIfExists(path); err != nil {
		s.logger.Warn(c.Request.Context(), "remove upload", "path", path, "error", err)
	}
}
