package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/vidaccounts/internal/common"
	"github.com/dmitrijs2005/vidaccounts/internal/logging"
	"github.com/dmitrijs2005/vidaccounts/internal/server/auth"
	"github.com/dmitrijs2005/vidaccounts/internal/server/config"
	"github.com/dmitrijs2005/vidaccounts/internal/server/models"
	"github.com/dmitrijs2005/vidaccounts/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/vidaccounts/internal/server/repositories/users"
	"github.com/dmitrijs2005/vidaccounts/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeMedia struct{}

func (fakeMedia) Upload(_ context.Context, localPath string) (string, error) {
	return "https://cdn.test/" + filepath.Base(localPath), nil
}

type testAPI struct {
	t         *testing.T
	handler   http.Handler
	repos     *repomanager.MemoryRepositoryManager
	uploadDir string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	cfg := &config.Config{
		UploadDir:      t.TempDir(),
		StoreTimeout:   time.Second,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		Debug:          true,
	}

	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	})
	require.NoError(t, err)
	passwords, err := auth.NewPasswords(auth.AlgorithmBcrypt, bcrypt.MinCost)
	require.NoError(t, err)

	repos := repomanager.NewMemoryRepositoryManager()
	accounts := services.NewUserService(repos, issuer, passwords, fakeMedia{}, cfg, logging.NopLogger{})
	channels := services.NewChannelService(repos, cfg, logging.NopLogger{})

	srv, err := NewHTTPServer(cfg, logging.NopLogger{}, accounts, channels)
	require.NoError(t, err)

	return &testAPI{t: t, handler: srv.Handler(), repos: repos, uploadDir: cfg.UploadDir}
}

func (a *testAPI) serve(req *http.Request, access string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	if access != "" {
		req.Header.Set("Authorization", common.AuthorizationScheme+access)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func (a *testAPI) json(method, path string, body any, access string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.serve(req, access, cookies...)
}

func (a *testAPI) multipart(method, path string, fields, files map[string]string, access string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(a.t, mw.WriteField(k, v))
	}
	for field, name := range files {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(a.t, err)
		_, err = fw.Write([]byte("image-bytes"))
		require.NoError(a.t, err)
	}
	require.NoError(a.t, mw.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return a.serve(req, access)
}

func (a *testAPI) register(username, password string) *httptest.ResponseRecorder {
	return a.multipart(http.MethodPost, "/api/v1/users/register", map[string]string{
		"fullName": strings.ToUpper(username[:1]) + username[1:],
		"username": username,
		"email":    username + "@x.com",
		"password": password,
	}, map[string]string{"avatar": "me.png"}, "")
}

func (a *testAPI) login(username, password string) loginResponseBody {
	a.t.Helper()
	w := a.json(http.MethodPost, "/api/v1/users/login", jsonBody{"username": username, "password": password}, "")
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	return decode[loginResponseBody](a.t, w).Data
}

type jsonBody = map[string]string

type envelope[T any] struct {
	StatusCode int    `json:"statusCode"`
	Code       string `json:"code"`
	Data       T      `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

type loginResponseBody struct {
	User         models.PublicUser `json:"user"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func cookieNamed(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	w := api.serve(httptest.NewRequest(http.MethodGet, "/healthz", nil), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegister(t *testing.T) {
	api := newTestAPI(t)

	w := api.multipart(http.MethodPost, "/api/v1/users/register", map[string]string{
		"fullName": "Alice", "username": "alice", "email": "alice@x.com", "password": "pw1",
	}, nil, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ARGUMENT", decode[any](t, w).Code)

	w = api.multipart(http.MethodPost, "/api/v1/users/register", map[string]string{
		"fullName": "Alice", "username": " ", "email": "alice@x.com", "password": "pw1",
	}, map[string]string{"avatar": "me.png"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = api.register("alice", "pw1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.PublicUser](t, w)
	assert.True(t, created.Success)
	assert.Equal(t, "alice", created.Data.Username)
	assert.True(t, strings.HasPrefix(created.Data.AvatarURL, "https://cdn.test/"))
	assert.True(t, strings.HasSuffix(created.Data.AvatarURL, ".png"))
	assert.NotContains(t, w.Body.String(), "password")
	assert.NotContains(t, w.Body.String(), "refreshToken")

	entries, err := os.ReadDir(api.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp uploads are removed after the request")

	w = api.register("alice", "pw2")
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", decode[any](t, w).Code)
}

func TestTokenLifecycle(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusCreated, api.register("alice", "secret1").Code)

	w := api.json(http.MethodPost, "/api/v1/users/login", jsonBody{"username": "alice", "password": "nope"}, "")
	require.Equal(t, http.StatusForbidden, w.Code)

	// email works as the identifier too
	w = api.json(http.MethodPost, "/api/v1/users/login", jsonBody{"email": "ALICE@x.com", "password": "secret1"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.json(http.MethodPost, "/api/v1/users/login", jsonBody{"username": "alice", "password": "secret1"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[loginResponseBody](t, w).Data
	assert.Equal(t, "alice", body.User.Username)

	accessCookie := cookieNamed(w, common.AccessTokenCookieName)
	refreshCookie := cookieNamed(w, common.RefreshTokenCookieName)
	require.NotNil(t, accessCookie)
	require.NotNil(t, refreshCookie)
	assert.Equal(t, body.AccessToken, accessCookie.Value)
	assert.Equal(t, body.RefreshToken, refreshCookie.Value)
	assert.True(t, accessCookie.HttpOnly)
	assert.True(t, refreshCookie.HttpOnly)
	assert.Equal(t, int((15 * time.Minute).Seconds()), accessCookie.MaxAge)
	assert.Equal(t, int((24 * time.Hour).Seconds()), refreshCookie.MaxAge)
	assert.Equal(t, http.SameSiteLaxMode, accessCookie.SameSite)
	assert.Equal(t, http.SameSiteStrictMode, refreshCookie.SameSite)

	// no credentials
	w = api.json(http.MethodGet, "/api/v1/users/current-user", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", decode[any](t, w).Code)

	// header and cookie both work
	w = api.json(http.MethodGet, "/api/v1/users/current-user", nil, body.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", decode[models.PublicUser](t, w).Data.Username)
	w = api.json(http.MethodGet, "/api/v1/users/current-user", nil, "", accessCookie)
	require.Equal(t, http.StatusOK, w.Code)

	// refresh via cookie rotates the pair
	w = api.json(http.MethodPost, "/api/v1/users/refresh-token", nil, "", refreshCookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rotated := decode[tokensResponse](t, w).Data
	assert.NotEqual(t, body.RefreshToken, rotated.RefreshToken)
	assert.Equal(t, rotated.RefreshToken, cookieNamed(w, common.RefreshTokenCookieName).Value)

	// the old token is spent, also when presented in the body
	w = api.json(http.MethodPost, "/api/v1/users/refresh-token", jsonBody{"refreshToken": body.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "TOKEN_REUSE_DETECTED", decode[any](t, w).Code)

	w = api.json(http.MethodPost, "/api/v1/users/refresh-token", jsonBody{"refreshToken": rotated.RefreshToken}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	latest := decode[tokensResponse](t, w).Data

	// missing token
	w = api.json(http.MethodPost, "/api/v1/users/refresh-token", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// logout clears cookies and ends the session
	w = api.json(http.MethodPost, "/api/v1/users/logout", nil, latest.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	cleared := cookieNamed(w, common.RefreshTokenCookieName)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)

	w = api.json(http.MethodPost, "/api/v1/users/refresh-token", jsonBody{"refreshToken": latest.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", decode[any](t, w).Code)
}

func TestAccountUpdates(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusCreated, api.register("alice", "pw1").Code)
	session := api.login("alice", "pw1")

	w := api.json(http.MethodPost, "/api/v1/users/change-password", jsonBody{"oldPassword": "wrong", "newPassword": "pw2"}, session.AccessToken)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = api.json(http.MethodPost, "/api/v1/users/change-password", jsonBody{"oldPassword": "pw1"}, session.AccessToken)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = api.json(http.MethodPost, "/api/v1/users/change-password", jsonBody{"oldPassword": "pw1", "newPassword": "pw2"}, session.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	api.login("alice", "pw2")

	w = api.json(http.MethodPatch, "/api/v1/users/update-account", jsonBody{"fullName": "Alice Liddell", "email": "al@x.com"}, session.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[models.PublicUser](t, w).Data
	assert.Equal(t, "Alice Liddell", updated.FullName)
	assert.Equal(t, "al@x.com", updated.Email)

	w = api.multipart(http.MethodPatch, "/api/v1/users/avatar", nil, nil, session.AccessToken)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = api.multipart(http.MethodPatch, "/api/v1/users/avatar", nil, map[string]string{"avatar": "new.jpg"}, session.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasSuffix(decode[models.PublicUser](t, w).Data.AvatarURL, ".jpg"))

	w = api.multipart(http.MethodPatch, "/api/v1/users/cover-image", nil, map[string]string{"coverImage": "cover.webp"}, session.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasSuffix(decode[models.PublicUser](t, w).Data.CoverImageURL, ".webp"))
}

func TestChannelsAndHistory(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusCreated, api.register("alice", "pw1").Code)
	require.Equal(t, http.StatusCreated, api.register("bob", "pw2").Code)
	alice := api.login("alice", "pw1")
	bob := api.login("bob", "pw2")

	w := api.json(http.MethodPost, "/api/v1/subscriptions/c/"+alice.User.ID, nil, bob.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, map[string]bool{"subscribed": true}, decode[map[string]bool](t, w).Data)

	w = api.json(http.MethodPost, "/api/v1/subscriptions/c/"+alice.User.ID, nil, alice.AccessToken)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = api.json(http.MethodGet, "/api/v1/users/c/alice", nil, bob.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	profile := decode[models.ChannelProfile](t, w).Data
	assert.Equal(t, int64(1), profile.SubscribersCount)
	assert.True(t, profile.IsSubscribed)

	w = api.json(http.MethodGet, "/api/v1/users/c/nobody", nil, bob.AccessToken)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = api.json(http.MethodPost, "/api/v1/subscriptions/c/"+alice.User.ID, nil, bob.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]bool{"subscribed": false}, decode[map[string]bool](t, w).Data)

	repo, ok := api.repos.Users().(*users.MemoryRepository)
	require.True(t, ok)
	repo.AddVideo(users.Video{ID: "v1", Title: "Intro", OwnerID: alice.User.ID})

	w = api.json(http.MethodPost, "/api/v1/users/history/v1", nil, bob.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = api.json(http.MethodPost, "/api/v1/users/history/missing", nil, bob.AccessToken)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = api.json(http.MethodGet, "/api/v1/users/history", nil, bob.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]models.WatchHistoryEntry](t, w).Data
	require.Len(t, history, 1)
	assert.Equal(t, "Intro", history[0].Title)
	assert.Equal(t, "alice", history[0].OwnerUsername)
}

func TestRefreshToken_FormField(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusCreated, api.register("alice", "secret1").Code)
	session := api.login("alice", "secret1")

	form := url.Values{"refreshToken": {session.RefreshToken}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := api.serve(req, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEqual(t, session.RefreshToken, decode[tokensResponse](t, w).Data.RefreshToken)
}
