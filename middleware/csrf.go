package middleware

import (
	"context"
	"crypto/sha256"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
)

// CSRFFieldName is the hidden form field carrying the token.
const CSRFFieldName = "csrf_token"

type ginContextKey struct{}

// CSRF protects unsafe methods with gorilla/csrf. Failed checks are handed to deny.
func CSRF(secret string, secure bool, deny gin.HandlerFunc) gin.HandlerFunc {
	key := sha256.Sum256([]byte("csrf:" + secret))
	protect := csrf.Protect(key[:],
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.FieldName(CSRFFieldName),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ctx, ok := r.Context().Value(ginContextKey{}).(*gin.Context); ok {
				deny(ctx)
				return
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})),
	)

	return func(ctx *gin.Context) {
		passed := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			ctx.Request = r
			ctx.Next()
		})

		r := ctx.Request.WithContext(context.WithValue(ctx.Request.Context(), ginContextKey{}, ctx))
		if !secure {
			r = csrf.PlaintextHTTPRequest(r)
		}
		protect(next).ServeHTTP(ctx.Writer, r)
		if !passed {
			ctx.Abort()
		}
	}
}
