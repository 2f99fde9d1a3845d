package routes

import (
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/fastdiary/fastdiary/config"
	"github.com/fastdiary/fastdiary/controllers"
	"github.com/fastdiary/fastdiary/middleware"
	"github.com/fastdiary/fastdiary/services"
	"github.com/fastdiary/fastdiary/templates"
	"github.com/fastdiary/fastdiary/utils"
)

// Services bundles the stores the handlers work on.
type Services struct {
	Diary   *services.DiaryService
	Users   *services.UserService
	Uploads *services.UploadService
}

// NewServices builds the services over db.
func NewServices(cfg config.AppConfig, db *gorm.DB) *Services {
	return &Services{
		Diary:   services.NewDiaryService(db, cfg),
		Users:   services.NewUserService(db),
		Uploads: services.NewUploadService(cfg),
	}
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, svc *Services) (*gin.Engine, error) {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log and panic recovery go to their own rolling file.
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, true))
	} else {
		r.Use(gin.Recovery())
	}

	tmpl, err := templates.Load(template.FuncMap{
		"photoURL": func(name string) string {
			if svc.Uploads.HasThumb(name) {
				return "/uploads/thumbs/" + url.PathEscape(name)
			}
			return "/uploads/" + url.PathEscape(name)
		},
	})
	if err != nil {
		return nil, err
	}
	r.SetHTMLTemplate(tmpl)

	r.Static("/static", cfg.StaticDir)
	uploadController := controllers.NewUploadController(svc.Uploads)
	r.GET("/uploads/*filename", uploadController.Serve)

	r.GET("/health", controllers.Health)

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}

	apiController := controllers.NewAPIController(svc.Diary)
	api := r.Group("/api", cors.New(corsCfg))
	api.GET("/dashboard", apiController.Dashboard)
	api.GET("/entries", apiController.Entries)

	sessions := middleware.NewSessions(cfg, svc.Users)
	web := r.Group("")
	web.Use(sessions.LoadSession(), middleware.BodyLimit(cfg.MaxUploadBytes()))
	if cfg.CSRFEnabled {
		web.Use(middleware.CSRF(cfg.SecretKey, cfg.CookieSecure, controllers.Forbidden))
	}

	authController := controllers.NewAuthController(svc.Users)
	dashboardController := controllers.NewDashboardController(svc.Diary)
	entryController := controllers.NewEntryController(svc.Diary, svc.Uploads)
	guard := middleware.AuthRequired()

	web.GET("/", dashboardController.Show)
	web.GET("/login", authController.LoginForm)
	web.POST("/login", middleware.RateLimit(cfg.LoginRatePerMinute, controllers.TooManyRequests), authController.Login)
	web.GET("/logout", authController.Logout)

	web.GET("/entries", entryController.List)
	web.GET("/entry/new", guard, entryController.Form)
	web.POST("/entry/new", guard, entryController.Save)
	web.GET("/entry/:id", entryController.View)
	web.GET("/entry/:id/edit", guard, entryController.Form)
	web.POST("/entry/:id/edit", guard, entryController.Save)
	web.POST("/entry/:id/delete", guard, entryController.Delete)
	web.POST("/photo/:id/delete", guard, entryController.DeletePhoto)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			ctx.Abort()
		}
	}, sessions.LoadSession(), controllers.NotFound)

	return r, nil
}
