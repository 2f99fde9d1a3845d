package middleware

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastdiary/fastdiary/config"
	"github.com/fastdiary/fastdiary/models"
	"github.com/fastdiary/fastdiary/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubUsers map[uint]*models.User

func (s stubUsers) Get(id uint) (*models.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, errors.New("no such user")
}

func newTestRouter() (*gin.Engine, *Sessions) {
	cfg := config.AppConfig{SecretKey: "test-secret", SessionTTLHours: 1}
	sessions := NewSessions(cfg, stubUsers{7: {ID: 7, Username: "faster"}})
	r := gin.New()
	r.Use(sessions.LoadSession())
	return r, sessions
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", SessionCookieName)
	return nil
}

func TestAuthRequiredRedirectsAnonymous(t *testing.T) {
	r, _ := newTestRouter()
	r.GET("/entry/new", AuthRequired(), func(c *gin.Context) { c.String(http.StatusOK, "form") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/entry/new", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?next=%2Fentry%2Fnew", w.Header().Get("Location"))

	sess, err := utils.DecodeSession(sessionCookie(t, w).Value, "test-secret")
	require.NoError(t, err)
	require.Len(t, sess.Flashes, 1)
	assert.Equal(t, utils.Flash{Category: utils.FlashError, Message: "Please log in to do that."}, sess.Flashes[0])
}

func TestSessionLoginRoundTripAndRevocation(t *testing.T) {
	r, _ := newTestRouter()
	r.POST("/login", func(c *gin.Context) {
		StartSession(c, &models.User{ID: 7, Username: "faster"})
		SaveSession(c)
		c.Status(http.StatusNoContent)
	})
	r.GET("/logout", func(c *gin.Context) {
		EndSession(c)
		SaveSession(c)
		c.Status(http.StatusNoContent)
	})
	r.GET("/private", AuthRequired(), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).Username)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	loggedIn := sessionCookie(t, w)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(loggedIn)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "faster", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(loggedIn)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	// the old cookie is now revoked
	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(loggedIn)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestLogoutWithoutLoginRevokesNothing(t *testing.T) {
	r, _ := newTestRouter()
	var sids []string
	r.GET("/logout", func(c *gin.Context) {
		sids = append(sids, SessionFrom(c).ID)
		EndSession(c)
		SaveSession(c)
		c.Status(http.StatusNoContent)
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logout", nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}

	// an anonymous session that came back in a cookie is not revoked either
	anon := utils.NewSession()
	token, err := utils.EncodeSession(anon, "test-secret", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, sids, 4)
	assert.Equal(t, anon.ID, sids[3])
	for _, sid := range sids {
		assert.False(t, utils.IsSessionRevoked(sid))
	}
}

func TestSessionForUnknownUserIsAnonymous(t *testing.T) {
	r, _ := newTestRouter()
	r.GET("/whoami", func(c *gin.Context) {
		if CurrentUser(c) == nil {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, CurrentUser(c).Username)
	})

	sess := utils.NewSession()
	sess.UserID = 99
	token, err := utils.EncodeSession(sess, "test-secret", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "anonymous", w.Body.String())
}

func TestTamperedCookieIsIgnored(t *testing.T) {
	r, _ := newTestRouter()
	r.GET("/whoami", func(c *gin.Context) {
		assert.Nil(t, CurrentUser(c))
		c.Status(http.StatusOK)
	})

	sess := utils.NewSession()
	sess.UserID = 7
	token, err := utils.EncodeSession(sess, "another-secret", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSafeNext(t *testing.T) {
	cases := map[string]string{
		"":                      "/",
		"/entry/new":            "/entry/new",
		"/entries?x=1":          "/entries?x=1",
		"//evil.example/":       "/",
		"/\\evil.example":       "/",
		"https://evil.example/": "/",
		"javascript:alert(1)":   "/",
		"entry/new":             "/",
	}
	for in, want := range cases {
		assert.Equal(t, want, SafeNext(in), in)
	}
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.POST("/login", RateLimit(2, func(c *gin.Context) { c.String(http.StatusTooManyRequests, "slow down") }), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := []int{}
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
}

func TestBodyLimitRejectsDeclaredLength(t *testing.T) {
	r, _ := newTestRouter()
	r.Use(BodyLimit(10))
	r.POST("/entry/new", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/entry/new", strings.NewReader(strings.Repeat("x", 64)))
	req.Header.Set("Referer", "/entry/new")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/entry/new", w.Header().Get("Location"))
	sess, err := utils.DecodeSession(sessionCookie(t, w).Value, "test-secret")
	require.NoError(t, err)
	require.Len(t, sess.Flashes, 1)
	assert.Equal(t, "File too large.", sess.Flashes[0].Message)
}

func TestBodyLimitWhileStreaming(t *testing.T) {
	r, _ := newTestRouter()
	r.Use(BodyLimit(10))
	r.POST("/upload", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if IsTooLarge(err) {
			TooLarge(c)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(strings.Repeat("x", 64)))
	req.ContentLength = -1
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestBodyLimitReportsOversizedUploadBeforeCSRF(t *testing.T) {
	r, _ := newTestRouter()
	r.Use(BodyLimit(256), CSRF("test-secret", false, func(c *gin.Context) { c.String(http.StatusForbidden, "forbidden") }))
	r.POST("/entry/new", func(c *gin.Context) { c.Status(http.StatusOK) })

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("photos", "big.png")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("x"), 4096))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/entry/new", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Referer", "/entry/new")
	req.ContentLength = -1
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/entry/new", w.Header().Get("Location"))
	sess, err := utils.DecodeSession(sessionCookie(t, w).Value, "test-secret")
	require.NoError(t, err)
	require.Len(t, sess.Flashes, 1)
	assert.Equal(t, "File too large.", sess.Flashes[0].Message)
}

func TestCSRFRejectsMissingToken(t *testing.T) {
	r := gin.New()
	r.Use(CSRF("test-secret", false, func(c *gin.Context) { c.String(http.StatusForbidden, "forbidden") }))
	r.GET("/form", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/form", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/form", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/form", strings.NewReader("a=b")))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", w.Body.String())
}
