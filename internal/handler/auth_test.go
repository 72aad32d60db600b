package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasksched/tasksched/internal/domain"
	"github.com/tasksched/tasksched/internal/service"
	"github.com/tasksched/tasksched/internal/token"
)

type fakeUserStore struct {
	seq   int64
	users map[string]*domain.User
}

func (f *fakeUserStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	user, ok := f.users[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUserStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	_, ok := f.users[email]
	return ok, nil
}

func (f *fakeUserStore) Save(_ context.Context, user domain.User) (*domain.User, error) {
	if user.ID == 0 {
		if _, ok := f.users[user.Email]; ok {
			return nil, domain.ErrConflict
		}
		f.seq++
		user.ID = f.seq
	}
	copied := user
	f.users[user.Email] = &copied
	return &user, nil
}

func (f *fakeUserStore) UpsertByEmail(_ context.Context, user domain.User) (*domain.User, error) {
	if existing, ok := f.users[user.Email]; ok {
		existing.Provider = user.Provider
		existing.ProviderID = user.ProviderID
		existing.PictureURL = user.PictureURL
		copied := *existing
		return &copied, nil
	}
	return f.Save(context.Background(), user)
}

func newAuthTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	store := &fakeUserStore{users: map[string]*domain.User{}}
	codec := token.New("test-secret", time.Hour)
	authSvc := service.NewAuthService(store, codec)
	fedSvc := service.NewFederationService(store, codec, service.FederationConfig{
		CallbackBaseURL: "http://localhost:8080/api/auth/oauth2/callback",
	})
	h := NewAuthHandler(authSvc, fedSvc, "test-secret", "http://localhost:3000")

	e := echo.New()
	e.HTTPErrorHandler = HTTPErrorHandler
	e.Validator = NewAppValidator()

	auth := e.Group("/api/auth")
	auth.POST("/login", h.Login)
	auth.POST("/register", h.Register)
	auth.POST("/validate", h.ValidateToken)
	auth.POST("/principal-info", h.PrincipalInfo)
	auth.GET("/oauth2/authorize/:provider", h.OAuthAuthorize)
	auth.GET("/oauth2/callback/:provider", h.OAuthCallback)

	return e
}

func doJSON(e *echo.Echo, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRegisterAndLoginEndpoints(t *testing.T) {
	e := newAuthTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/auth/register",
		`{"name":"Ann","email":"Ann@X.com","password":"secret1","confirmPassword":"secret1"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Token string `json:"token"`
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Token)
	assert.Equal(t, "ann@x.com", created.Email)
	assert.Equal(t, "Ann", created.Name)

	t.Run("duplicate registration", func(t *testing.T) {
		rec := doJSON(e, http.MethodPost, "/api/auth/register",
			`{"name":"Ann","email":"ann@x.com","password":"secret1","confirmPassword":"secret1"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "validation_error")
	})

	t.Run("login with stored credentials", func(t *testing.T) {
		rec := doJSON(e, http.MethodPost, "/api/auth/login",
			`{"email":"ann@x.com","password":"secret1"}`, nil)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("login with wrong password", func(t *testing.T) {
		rec := doJSON(e, http.MethodPost, "/api/auth/login",
			`{"email":"ann@x.com","password":"wrong"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestValidateAndPrincipalEndpoints(t *testing.T) {
	e := newAuthTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/auth/register",
		`{"name":"Ann","email":"ann@x.com","password":"secret1","confirmPassword":"secret1"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Token string `json:"token"`
		ID    int64  `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	t.Run("validate good token", func(t *testing.T) {
		rec := doJSON(e, http.MethodPost, "/api/auth/validate", "",
			map[string]string{"Authorization": "Bearer " + created.Token})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "true\n", rec.Body.String())
	})

	t.Run("validate forged token", func(t *testing.T) {
		forged, err := token.New("other-secret", time.Hour).Issue("ann@x.com", created.ID)
		require.NoError(t, err)
		rec := doJSON(e, http.MethodPost, "/api/auth/validate", "",
			map[string]string{"Authorization": "Bearer " + forged})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "false\n", rec.Body.String())
	})

	t.Run("validate without header", func(t *testing.T) {
		rec := doJSON(e, http.MethodPost, "/api/auth/validate", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("principal info", func(t *testing.T) {
		rec := doJSON(e, http.MethodPost, "/api/auth/principal-info", "",
			map[string]string{"Authorization": "Bearer " + created.Token})
		require.Equal(t, http.StatusOK, rec.Code)

		var principal domain.Principal
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &principal))
		assert.Equal(t, domain.Principal{ID: created.ID, Name: "Ann", Email: "ann@x.com"}, principal)
	})

	t.Run("principal info with expired token", func(t *testing.T) {
		expired, err := token.New("test-secret", -time.Hour).Issue("ann@x.com", created.ID)
		require.NoError(t, err)
		rec := doJSON(e, http.MethodPost, "/api/auth/principal-info", "",
			map[string]string{"Authorization": "Bearer " + expired})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestOAuthAuthorizeRedirect(t *testing.T) {
	e := newAuthTestServer(t)

	req := httptest.NewRequest(http.MethodGet,
		"/api/auth/oauth2/authorize/github?redirect_uri=http://localhost:3000/app", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "github.com", location.Host)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	// The state is signed and carries the caller's redirect target.
	st, err := parseState([]byte("test-secret"), state, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/app", st.Redirect)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, nonceCookie, cookies[0].Name)
	assert.Equal(t, st.Nonce, cookies[0].Value)
}

func TestOAuthCallbackStateChecks(t *testing.T) {
	e := newAuthTestServer(t)
	secret := []byte("test-secret")

	t.Run("unsigned state is rejected outright", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/api/auth/oauth2/callback/github?code=c&state=http://localhost:3000", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("nonce mismatch redirects with error", func(t *testing.T) {
		state, _, err := signState(secret, "http://localhost:3000/app", time.Now())
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet,
			"/api/auth/oauth2/callback/github?code=c&state="+url.QueryEscape(state), nil)
		req.AddCookie(&http.Cookie{Name: nonceCookie, Value: "stale-nonce"})
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusFound, rec.Code)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "localhost:3000", location.Host)
		assert.NotEmpty(t, location.Query().Get("error"))
		assert.Empty(t, location.Query().Get("token"))
	})

	t.Run("missing code redirects with error", func(t *testing.T) {
		state, nonce, err := signState(secret, "http://localhost:3000/app", time.Now())
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet,
			"/api/auth/oauth2/callback/github?state="+url.QueryEscape(state), nil)
		req.AddCookie(&http.Cookie{Name: nonceCookie, Value: nonce})
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusFound, rec.Code)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.NotEmpty(t, location.Query().Get("error"))
	})
}
