package middleware

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/fastdiary/fastdiary/utils"
)

// AuthRequired sends anonymous visitors to the login page, remembering where they were going.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if CurrentUser(ctx) != nil {
			ctx.Next()
			return
		}
		AddFlash(ctx, utils.FlashError, "Please log in to do that.")
		SaveSession(ctx)
		ctx.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(ctx.Request.URL.Path))
		ctx.Abort()
	}
}

// SafeNext returns next when it is a path on this site, else "/".
func SafeNext(next string) string {
	if next == "" || next[0] != '/' || (len(next) > 1 && (next[1] == '/' || next[1] == '\\')) {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return next
}
