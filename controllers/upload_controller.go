package controllers

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fastdiary/fastdiary/services"
)

// UploadController serves stored photos and thumbnails.
type UploadController struct {
	uploads *services.UploadService
}

// NewUploadController returns an UploadController.
func NewUploadController(uploads *services.UploadService) *UploadController {
	return &UploadController{uploads: uploads}
}

// Serve sends a file from the upload directory. Paths that try to leave it are not found.
func (u *UploadController) Serve(ctx *gin.Context) {
	raw := strings.TrimPrefix(ctx.Param("filename"), "/")
	if raw == "" || strings.Contains(raw, "\\") {
		NotFound(ctx)
		return
	}
	for _, seg := range strings.Split(raw, "/") {
		if seg == ".." || seg == "." || seg == "" {
			NotFound(ctx)
			return
		}
	}
	rel := path.Clean(raw)

	full := filepath.Join(u.uploads.Dir(), filepath.FromSlash(rel))
	st, err := os.Stat(full)
	if err != nil || st.IsDir() {
		NotFound(ctx)
		return
	}
	ctx.File(full)
}
