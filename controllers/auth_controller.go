package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fastdiary/fastdiary/middleware"
	"github.com/fastdiary/fastdiary/services"
	"github.com/fastdiary/fastdiary/utils"
)

// AuthController handles logging in and out.
type AuthController struct {
	users *services.UserService
}

// NewAuthController returns an AuthController.
func NewAuthController(users *services.UserService) *AuthController {
	return &AuthController{users: users}
}

// LoginForm shows the login page.
func (a *AuthController) LoginForm(ctx *gin.Context) {
	render(ctx, http.StatusOK, "login.html", gin.H{
		"Title":    "Log in",
		"Next":     ctx.Query("next"),
		"Username": "",
	})
}

// Login verifies the credentials and starts an authenticated session.
func (a *AuthController) Login(ctx *gin.Context) {
	username := strings.TrimSpace(ctx.PostForm("username"))
	password := ctx.PostForm("password")
	next := ctx.Query("next")
	if next == "" {
		next = ctx.PostForm("next")
	}

	user, err := a.users.Authenticate(username, password)
	if err != nil {
		if !errors.Is(err, services.ErrInvalidCredentials) {
			logger(ctx).Error("login lookup failed", zap.Error(err))
		} else {
			logger(ctx).Info("login failed", zap.String("username", username), zap.String("ip", ctx.ClientIP()))
		}
		flash(ctx, utils.FlashError, "Invalid credentials.")
		render(ctx, http.StatusOK, "login.html", gin.H{
			"Title":    "Log in",
			"Next":     next,
			"Username": username,
		})
		return
	}

	middleware.StartSession(ctx, user)
	flash(ctx, utils.FlashSuccess, "Welcome back!")
	logger(ctx).Info("login", zap.String("username", user.Username))
	redirect(ctx, middleware.SafeNext(next))
}

// Logout ends the session. It succeeds whether or not anyone was logged in.
func (a *AuthController) Logout(ctx *gin.Context) {
	middleware.EndSession(ctx)
	flash(ctx, utils.FlashSuccess, "Logged out.")
	redirect(ctx, "/")
}
