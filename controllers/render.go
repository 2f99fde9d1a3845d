package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"github.com/fastdiary/fastdiary/middleware"
	"github.com/fastdiary/fastdiary/services"
	"github.com/fastdiary/fastdiary/utils"
)

// render writes an HTML page with the shared layout data. Pending flashes are consumed and the
// session cookie is written before the body.
func render(ctx *gin.Context, status int, page string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	user := middleware.CurrentUser(ctx)
	data["LoggedIn"] = user != nil
	data["CurrentUser"] = user
	data["Flashes"] = middleware.SessionFrom(ctx).PopFlashes()
	data["CSRFField"] = csrf.TemplateField(ctx.Request)
	middleware.SaveSession(ctx)
	ctx.HTML(status, page, data)
}

// redirect persists the session and sends a 302.
func redirect(ctx *gin.Context, location string) {
	middleware.SaveSession(ctx)
	ctx.Redirect(http.StatusFound, location)
}

func flash(ctx *gin.Context, category, message string) {
	middleware.AddFlash(ctx, category, message)
}

// NotFound renders the not-found page.
func NotFound(ctx *gin.Context) {
	render(ctx, http.StatusNotFound, "error.html", gin.H{
		"Title":   "Not found",
		"Message": "The page you are looking for does not exist.",
	})
}

// Forbidden renders the page shown when a form fails the CSRF check.
func Forbidden(ctx *gin.Context) {
	render(ctx, http.StatusForbidden, "error.html", gin.H{
		"Title":   "Forbidden",
		"Message": "The form expired. Go back, reload the page and try again.",
	})
}

// TooManyRequests renders the page shown to rate limited clients.
func TooManyRequests(ctx *gin.Context) {
	render(ctx, http.StatusTooManyRequests, "error.html", gin.H{
		"Title":   "Slow down",
		"Message": "Too many attempts. Wait a minute and try again.",
	})
}

func serverError(ctx *gin.Context, msg string, err error) {
	logger(ctx).Error(msg, zap.Error(err))
	render(ctx, http.StatusInternalServerError, "error.html", gin.H{
		"Title":   "Something went wrong",
		"Message": "The diary could not complete that request.",
	})
}

// handleLookupError maps a store error to the not-found or error page.
func handleLookupError(ctx *gin.Context, msg string, err error) {
	if errors.Is(err, services.ErrNotFound) {
		NotFound(ctx)
		return
	}
	serverError(ctx, msg, err)
}

// idParam parses a positive integer path parameter. ok is false after a 404 was rendered.
func idParam(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		NotFound(ctx)
		return 0, false
	}
	return uint(id), true
}

func logger(ctx *gin.Context) *zap.Logger {
	return utils.Logger.With(zap.String("method", ctx.Request.Method), zap.String("path", ctx.Request.URL.Path))
}
