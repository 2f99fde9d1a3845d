package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fastdiary/fastdiary/utils"
)

// multipartMemory matches gin's default MaxMultipartMemory.
const multipartMemory = 32 << 20

// BodyLimit caps request bodies at maxBytes. Requests that announce a larger body are answered
// by TooLarge right away; bodies that grow past the cap fail on read with a MaxBytesError.
// Multipart bodies are parsed here so an oversized upload is reported before any later
// middleware reads the form.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.ContentLength > maxBytes {
			TooLarge(ctx)
			ctx.Abort()
			return
		}
		if ctx.Request.Body != nil {
			ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxBytes)
		}
		if strings.HasPrefix(ctx.ContentType(), "multipart/form-data") {
			// other parse errors surface again when the handler reads the form
			if err := ctx.Request.ParseMultipartForm(multipartMemory); IsTooLarge(err) {
				TooLarge(ctx)
				ctx.Abort()
				return
			}
		}
		ctx.Next()
	}
}

// IsTooLarge reports whether err came from reading past the body cap.
func IsTooLarge(err error) bool {
	if err == nil {
		return false
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

// TooLarge flashes a notice and sends the visitor back where they came from.
func TooLarge(ctx *gin.Context) {
	AddFlash(ctx, utils.FlashError, "File too large.")
	SaveSession(ctx)
	back := ctx.Request.Referer()
	if back == "" {
		back = "/"
	}
	ctx.Redirect(http.StatusFound, back)
}
