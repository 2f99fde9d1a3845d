package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fastdiary/fastdiary/config"
	"github.com/fastdiary/fastdiary/models"
	"github.com/fastdiary/fastdiary/utils"
)

const (
	// SessionCookieName is the cookie carrying the signed session.
	SessionCookieName = "fastdiary_session"

	contextSessionKey  = "session"
	contextUserKey     = "current_user"
	contextSessionsKey = "sessions"
)

// UserLookup resolves the user referenced by a session.
type UserLookup interface {
	Get(id uint) (*models.User, error)
}

// Sessions reads and writes the session cookie.
type Sessions struct {
	secret string
	ttl    time.Duration
	secure bool
	users  UserLookup
}

// NewSessions returns a Sessions signing cookies with the configured secret.
func NewSessions(cfg config.AppConfig, users UserLookup) *Sessions {
	return &Sessions{secret: cfg.SecretKey, ttl: cfg.SessionTTL(), secure: cfg.CookieSecure, users: users}
}

// LoadSession parses the session cookie once per request and resolves the current user.
func (m *Sessions) LoadSession() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		sess := m.read(ctx)
		if sess.UserID != 0 {
			if u, err := m.users.Get(sess.UserID); err == nil {
				ctx.Set(contextUserKey, u)
			} else {
				sess.UserID = 0
			}
		}
		ctx.Set(contextSessionsKey, m)
		ctx.Set(contextSessionKey, sess)
		ctx.Next()
	}
}

func (m *Sessions) read(ctx *gin.Context) *utils.Session {
	raw, err := ctx.Cookie(SessionCookieName)
	if err != nil || raw == "" {
		return utils.NewSession()
	}
	sess, err := utils.DecodeSession(raw, m.secret)
	if err != nil {
		utils.Logger.Debug("discarding session cookie", zap.Error(err))
		return utils.NewSession()
	}
	if utils.IsSessionRevoked(sess.ID) {
		return utils.NewSession()
	}
	return sess
}

func (m *Sessions) write(ctx *gin.Context, sess *utils.Session) error {
	token, err := utils.EncodeSession(sess, m.secret, m.ttl)
	if err != nil {
		return err
	}
	http.SetCookie(ctx.Writer, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// SessionFrom returns the request session. Requests that did not pass LoadSession get a
// throwaway anonymous session.
func SessionFrom(ctx *gin.Context) *utils.Session {
	if v, ok := ctx.Get(contextSessionKey); ok {
		if sess, ok := v.(*utils.Session); ok {
			return sess
		}
	}
	sess := utils.NewSession()
	ctx.Set(contextSessionKey, sess)
	return sess
}

// CurrentUser returns the logged-in user or nil.
func CurrentUser(ctx *gin.Context) *models.User {
	if v, ok := ctx.Get(contextUserKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

// AddFlash queues a notice on the request session.
func AddFlash(ctx *gin.Context, category, message string) {
	SessionFrom(ctx).AddFlash(category, message)
}

// SaveSession writes the session cookie. It must run before the response body is written.
func SaveSession(ctx *gin.Context) {
	v, ok := ctx.Get(contextSessionsKey)
	if !ok {
		return
	}
	if err := v.(*Sessions).write(ctx, SessionFrom(ctx)); err != nil {
		utils.Logger.Error("failed to write session cookie", zap.Error(err))
	}
}

// StartSession replaces the request session with a fresh one for user, keeping pending flashes.
func StartSession(ctx *gin.Context, user *models.User) {
	old := SessionFrom(ctx)
	sess := utils.NewSession()
	sess.UserID = user.ID
	sess.Flashes = old.Flashes
	ctx.Set(contextSessionKey, sess)
	ctx.Set(contextUserKey, user)
}

// EndSession continues with an anonymous session. A logged-in session id is revoked so the old
// cookie stops working; anonymous sessions hold nothing worth revoking.
func EndSession(ctx *gin.Context) {
	old := SessionFrom(ctx)
	if old.UserID != 0 {
		expires := old.ExpiresAt
		if v, ok := ctx.Get(contextSessionsKey); ok && expires.IsZero() {
			expires = time.Now().Add(v.(*Sessions).ttl)
		}
		utils.RevokeSession(old.ID, expires)
	}
	ctx.Set(contextSessionKey, utils.NewSession())
	ctx.Set(contextUserKey, (*models.User)(nil))
}
