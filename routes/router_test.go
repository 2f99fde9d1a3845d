package routes

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastdiary/fastdiary/config"
	"github.com/fastdiary/fastdiary/middleware"
	"github.com/fastdiary/fastdiary/models"
	"github.com/fastdiary/fastdiary/utils"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)

func testConfig(t *testing.T) config.AppConfig {
	dir := t.TempDir()
	return config.AppConfig{
		SecretKey:          "test-secret",
		GinMode:            "test",
		DBDriver:           "sqlite",
		DatabaseURI:        filepath.Join(dir, "diary.db"),
		StaticDir:          filepath.Join(dir, "static"),
		UploadDir:          filepath.Join(dir, "static", "uploads"),
		MaxUploadMB:        1,
		ThumbnailWidth:     32,
		SessionTTLHours:    1,
		LoginRatePerMinute: 1000,
		AllowedOrigins:     []string{"*"},
		LogLevel:           "silent",
	}
}

func newTestApp(t *testing.T, cfg config.AppConfig) (*gin.Engine, *Services) {
	t.Helper()
	db, err := config.OpenDatabase(cfg)
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db, models.All()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	svc := NewServices(cfg, db)
	svc.Diary.Now = func() time.Time { return testNow }
	require.NoError(t, svc.Uploads.EnsureDirs())
	_, err = svc.Users.Create("faster", "correct horse")
	require.NoError(t, err)

	r, err := SetupRouter(cfg, svc)
	require.NoError(t, err)
	return r, svc
}

// client keeps the session cookie between requests like a browser would.
type client struct {
	t      *testing.T
	h      http.Handler
	cookie *http.Cookie
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	w := httptest.NewRecorder()
	c.h.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		if ck.Name == middleware.SessionCookieName {
			c.cookie = ck
		}
	}
	return w
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *client) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *client) postMultipart(path string, fields map[string]string, files map[string][]byte) *httptest.ResponseRecorder {
	c.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(c.t, mw.WriteField(k, v))
	}
	for name, data := range files {
		fw, err := mw.CreateFormFile("photos", name)
		require.NoError(c.t, err)
		_, err = fw.Write(data)
		require.NoError(c.t, err)
	}
	require.NoError(c.t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

// flashes returns the notices queued in the current session cookie.
func (c *client) flashes() []string {
	c.t.Helper()
	if c.cookie == nil {
		return nil
	}
	sess, err := utils.DecodeSession(c.cookie.Value, "test-secret")
	require.NoError(c.t, err)
	var out []string
	for _, f := range sess.Flashes {
		out = append(out, f.Message)
	}
	return out
}

func (c *client) login() {
	c.t.Helper()
	w := c.postForm("/login", url.Values{"username": {"faster"}, "password": {"correct horse"}})
	require.Equal(c.t, http.StatusFound, w.Code)
}

func pngFile(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 64, 48))))
	return buf.Bytes()
}

func TestGuardRedirectsAnonymousWrites(t *testing.T) {
	r, _ := newTestApp(t, testConfig(t))
	c := &client{t: t, h: r}

	w := c.get("/entry/new")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?next=%2Fentry%2Fnew", w.Header().Get("Location"))
	assert.Equal(t, []string{"Please log in to do that."}, c.flashes())

	w = c.postForm("/entry/1/delete", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/login?next="))

	w = c.postForm("/photo/1/delete", nil)
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestLoginThenGuardPasses(t *testing.T) {
	r, _ := newTestApp(t, testConfig(t))
	c := &client{t: t, h: r}

	w := c.postForm("/login?next=%2Fentry%2Fnew", url.Values{"username": {"faster"}, "password": {"correct horse"}})
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/entry/new", w.Header().Get("Location"))
	assert.Equal(t, []string{"Welcome back!"}, c.flashes())

	w = c.get("/entry/new")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "New entry")
	assert.Contains(t, w.Body.String(), "Welcome back!")
	assert.Empty(t, c.flashes())
}

func TestLoginWrongPassword(t *testing.T) {
	r, _ := newTestApp(t, testConfig(t))
	c := &client{t: t, h: r}

	w := c.postForm("/login", url.Values{"username": {"faster"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid credentials.")

	w = c.get("/entry/new")
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestLoginIgnoresOffsiteNext(t *testing.T) {
	r, _ := newTestApp(t, testConfig(t))
	c := &client{t: t, h: r}

	w := c.postForm("/login?next="+url.QueryEscape("https://evil.example/"), url.Values{"username": {"faster"}, "password": {"correct horse"}})
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestLogout(t *testing.T) {
	r, _ := newTestApp(t, testConfig(t))
	c := &client{t: t, h: r}
	c.login()

	w := c.get("/logout")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Contains(t, c.flashes(), "Logged out.")

	w = c.get("/entry/new")
	assert.Equal(t, http.StatusFound, w.Code)

	// logging out anonymously still works
	anon := &client{t: t, h: r}
	w = anon.get("/logout")
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestCreateEntryWithMixedUploads(t *testing.T) {
	cfg := testConfig(t)
	cfg.FastStartDate = "2025-03-01"
	r, svc := newTestApp(t, cfg)
	c := &client{t: t, h: r}
	c.login()
	c.get("/")

	w := c.postMultipart("/entry/new", map[string]string{
		"when":     "2025-03-02",
		"weight":   "80.5",
		"water_ml": "1800",
		"feelings": "**strong** today",
	}, map[string][]byte{
		"day2.png":  pngFile(t),
		"notes.txt": []byte("hello"),
	})
	require.Equal(t, http.StatusFound, w.Code)
	location := w.Header().Get("Location")
	assert.True(t, strings.HasPrefix(location, "/entry/"))
	assert.Equal(t, []string{"Unsupported file type: notes.txt", "Entry saved."}, c.flashes())

	entries, err := svc.Diary.ListEntries(false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	require.Len(t, e.Photos, 1)
	assert.Regexp(t, `^[0-9a-f]{32}\.png$`, e.Photos[0].Filename)
	assert.Equal(t, 80.5, *e.Weight)
	assert.Equal(t, 2, *e.DayNumber)
	_, err = os.Stat(filepath.Join(svc.Uploads.Dir(), e.Photos[0].Filename))
	assert.NoError(t, err)

	w = c.get(location)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<strong>strong</strong>")
	assert.Contains(t, w.Body.String(), e.Photos[0].Filename)

	w = c.get("/uploads/" + e.Photos[0].Filename)
	assert.Equal(t, http.StatusOK, w.Code)
	w = c.get("/uploads/thumbs/" + e.Photos[0].Filename)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEditEntry(t *testing.T) {
	r, svc := newTestApp(t, testConfig(t))
	c := &client{t: t, h: r}
	c.login()

	w := c.postForm("/entry/new", url.Values{"when": {"2025-03-05"}, "mood": {"ok"}})
	require.Equal(t, http.StatusFound, w.Code)
	location := w.Header().Get("Location")

	w = c.get(location + "/edit")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `value="2025-03-05"`)

	w = c.postForm(location+"/edit", url.Values{"when": {"2025-03-06"}, "energy": {"4"}})
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, location, w.Header().Get("Location"))

	entries, err := svc.Diary.ListEntries(false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2025-03-06", entries[0].When.UTC().Format(config.DateLayout))
	assert.Equal(t, 4, *entries[0].Energy)
	assert.Nil(t, entries[0].Mood)
}

func TestEditUnknownEntryIsNotFound(t *testing.T) {
	r, svc := newTestApp(t, testConfig(t))
	c := &client{t: t, h: r}
	c.login()

	w := c.get("/entry/999/edit")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = c.postForm("/entry/999/edit", url.Values{"when": {"2025-03-06"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	entries, err := svc.Diary.ListEntries(false)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInvalidFormValuesRedirectBack(t *testing.T) {
	r, svc := newTestApp(t, testConfig(t))
	c := &client{t: t, h: r}
	c.login()

	w := c.postForm("/entry/new", url.Values{"when": {"03/02/2025"}})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/entry/new", w.Header().Get("Location"))
	assert.Contains(t, c.flashes(), "Date must be in YYYY-MM-DD format.")

	w = c.postForm("/entry/new", url.Values{"weight": {"lots"}})
	assert.Equal(t, http.StatusFound, w.Code)

	entries, err := svc.Diary.ListEntries(false)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteEntryThenViewIsNotFound(t *testing.T) {
	r, svc := newTestApp(t, testConfig(t))
	c := &client{t: t, h: r}
	c.login()

	w := c.postMultipart("/entry/new", map[string]string{"when": "2025-03-01"}, map[string][]byte{"a.png": pngFile(t)})
	require.Equal(t, http.StatusFound, w.Code)
	location := w.Header().Get("Location")
	entries, err := svc.Diary.ListEntries(false)
	require.NoError(t, err)
	require.Len(t, entries[0].Photos, 1)
	stored := filepath.Join(svc.Uploads.Dir(), entries[0].Photos[0].Filename)

	w = c.postForm(location+"/delete", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/entries", w.Header().Get("Location"))
	assert.Contains(t, c.flashes(), "Entry deleted.")

	w = c.get(location)
	assert.Equal(t, http.StatusNotFound, w.Code)
	_, err = os.Stat(stored)
	assert.True(t, os.IsNotExist(err))
	_, err = svc.Diary.GetPhoto(entries[0].Photos[0].ID)
	assert.Error(t, err)

	w = c.postForm(location+"/delete", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeletePhoto(t *testing.T) {
	r, svc := newTestApp(t, testConfig(t))
	c := &client{t: t, h: r}
	c.login()

	w := c.postMultipart("/entry/new", map[string]string{"when": "2025-03-01"}, map[string][]byte{"a.png": pngFile(t)})
	require.Equal(t, http.StatusFound, w.Code)
	location := w.Header().Get("Location")
	entries, err := svc.Diary.ListEntries(false)
	require.NoError(t, err)
	photo := entries[0].Photos[0]

	w = c.postForm("/photo/"+itoa(photo.ID)+"/delete", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, location, w.Header().Get("Location"))
	assert.Contains(t, c.flashes(), "Photo removed.")
	_, err = os.Stat(filepath.Join(svc.Uploads.Dir(), photo.Filename))
	assert.True(t, os.IsNotExist(err))

	w = c.postForm("/photo/"+itoa(photo.ID)+"/delete", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOversizedUploadRedirectsWithNotice(t *testing.T) {
	r, svc := newTestApp(t, testConfig(t))
	c := &client{t: t, h: r}
	c.login()

	big := bytes.Repeat([]byte{0x42}, 2<<20)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("photos", "huge.png")
	require.NoError(t, err)
	_, err = fw.Write(big)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/entry/new", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Referer", "/entry/new")
	w := c.do(req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/entry/new", w.Header().Get("Location"))
	assert.Contains(t, c.flashes(), "File too large.")

	entries, err := svc.Diary.ListEntries(false)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadsRejectTraversal(t *testing.T) {
	r, _ := newTestApp(t, testConfig(t))
	c := &client{t: t, h: r}

	for _, p := range []string{"/uploads/../diary.db", "/uploads/thumbs/../../diary.db", "/uploads/", "/uploads/missing.png"} {
		w := c.get(p)
		assert.Equal(t, http.StatusNotFound, w.Code, p)
	}
}

func TestPublicPages(t *testing.T) {
	r, svc := newTestApp(t, testConfig(t))
	c := &client{t: t, h: r}

	w := c.get("/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Today is day")
	assert.Contains(t, w.Body.String(), "No entries yet.")

	_, err := svc.Diary.SaveEntry(servicesInput("2025-03-09"), nil)
	require.NoError(t, err)
	w = c.get("/")
	assert.Contains(t, w.Body.String(), "Sun 09 Mar")

	w = c.get("/entries")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Sun 09 Mar 2025")

	w = c.get("/login")
	assert.Equal(t, http.StatusOK, w.Code)

	w = c.get("/no/such/page")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Not found")

	w = c.get("/entry/abc")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJSONEndpoints(t *testing.T) {
	r, svc := newTestApp(t, testConfig(t))
	c := &client{t: t, h: r}
	for _, d := range []string{"2025-03-08", "2025-03-09", "2025-03-10"} {
		_, err := svc.Diary.SaveEntry(servicesInput(d), nil)
		require.NoError(t, err)
	}

	w := c.get("/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	w = c.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	var dash struct {
		Code int `json:"code"`
		Data struct {
			Labels   []string `json:"labels"`
			DoneDays int      `json:"done_days"`
			Progress int      `json:"progress"`
			TodayNum int      `json:"today_num"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dash))
	assert.Equal(t, 0, dash.Code)
	assert.Equal(t, []string{"Sat 08 Mar", "Sun 09 Mar", "Mon 10 Mar"}, dash.Data.Labels)
	assert.Equal(t, 3, dash.Data.DoneDays)
	assert.Equal(t, 43, dash.Data.Progress)
	assert.Equal(t, 3, dash.Data.TodayNum)

	w = c.get("/api/entries")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data struct {
			Items []models.Entry `json:"items"`
			Total int            `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 3, list.Data.Total)
	assert.Equal(t, "2025-03-10", list.Data.Items[0].When.UTC().Format(config.DateLayout))

	w = c.get("/api/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "40400")
}

func TestCSRFProtectsForms(t *testing.T) {
	cfg := testConfig(t)
	cfg.CSRFEnabled = true
	r, _ := newTestApp(t, cfg)
	c := &client{t: t, h: r}

	w := c.get("/login")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="csrf_token"`)

	w = c.postForm("/login", url.Values{"username": {"faster"}, "password": {"correct horse"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLoginRateLimited(t *testing.T) {
	cfg := testConfig(t)
	cfg.LoginRatePerMinute = 2
	r, _ := newTestApp(t, cfg)
	c := &client{t: t, h: r}

	var last int
	for i := 0; i < 3; i++ {
		last = c.postForm("/login", url.Values{"username": {"faster"}, "password": {"wrong"}}).Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
