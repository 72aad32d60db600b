package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tasksched/tasksched/internal/domain"
	"github.com/tasksched/tasksched/internal/service"
)

const nonceCookie = "oauth_nonce"

// AuthHandler handles the identity service endpoints: local login and
// registration, the OAuth redirect round trip, and the inter-service
// validate/principal-info RPCs.
type AuthHandler struct {
	auth        *service.AuthService
	federation  *service.FederationService
	stateSecret []byte
	frontendURL string
}

// NewAuthHandler creates a new AuthHandler. stateSecret keys the signed
// OAuth state parameter; frontendURL is the fallback redirect target.
func NewAuthHandler(auth *service.AuthService, federation *service.FederationService, stateSecret, frontendURL string) *AuthHandler {
	return &AuthHandler{
		auth:        auth,
		federation:  federation,
		stateSecret: []byte(stateSecret),
		frontendURL: frontendURL,
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

type authResponse struct {
	Token string `json:"token"`
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Login authenticates an email/password pair and returns a fresh credential.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, signed, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, authResponse{Token: signed, ID: user.ID, Name: user.Name, Email: user.Email})
}

// Register creates a local account and returns a credential for it.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, signed, err := h.auth.Register(c.Request().Context(), req.Name, req.Email, req.Password, req.ConfirmPassword)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, authResponse{Token: signed, ID: user.ID, Name: user.Name, Email: user.Email})
}

// ValidateToken is the inter-service RPC reporting bearer token validity as
// a bare boolean body.
func (h *AuthHandler) ValidateToken(c echo.Context) error {
	signed, ok := bearerToken(c.Request())
	if !ok {
		return c.JSON(http.StatusBadRequest, false)
	}
	return c.JSON(http.StatusOK, h.auth.ValidateToken(signed))
}

// PrincipalInfo is the inter-service RPC resolving a bearer token to the
// authenticated principal.
func (h *AuthHandler) PrincipalInfo(c echo.Context) error {
	signed, ok := bearerToken(c.Request())
	if !ok {
		return domain.ErrUnauthorized
	}
	principal, err := h.auth.PrincipalFromToken(c.Request().Context(), signed)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, principal)
}

// OAuthAuthorize sends the browser to the provider's consent page. The
// caller's desired post-login target rides inside the signed state, and the
// state nonce is mirrored into a short-lived cookie.
func (h *AuthHandler) OAuthAuthorize(c echo.Context) error {
	redirect := c.QueryParam("redirect_uri")
	if redirect == "" {
		redirect = h.frontendURL
	}

	state, nonce, err := signState(h.stateSecret, redirect, time.Now())
	if err != nil {
		return err
	}

	authURL, err := h.federation.AuthorizeURL(c.Param("provider"), state)
	if err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     nonceCookie,
		Value:    nonce,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateTTL.Seconds()),
	})
	return c.Redirect(http.StatusFound, authURL)
}

// OAuthCallback finishes the federation flow. The browser is mid-redirect,
// so failures after the state check go back to the caller's target as an
// error query parameter instead of an HTTP error status.
func (h *AuthHandler) OAuthCallback(c echo.Context) error {
	st, err := parseState(h.stateSecret, c.QueryParam("state"), time.Now())
	if err != nil {
		// Without a verified state there is no trusted target to redirect to.
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	cookie, cookieErr := c.Cookie(nonceCookie)
	c.SetCookie(&http.Cookie{Name: nonceCookie, Value: "", Path: "/", HttpOnly: true, MaxAge: -1})
	if cookieErr != nil || cookie.Value != st.Nonce {
		return redirectWithError(c, st.Redirect, "login session mismatch, please retry")
	}

	code := c.QueryParam("code")
	if code == "" {
		return redirectWithError(c, st.Redirect, "authorization was cancelled or denied")
	}

	providerName := c.Param("provider")
	_, signed, err := h.federation.Exchange(c.Request().Context(), providerName, code)
	if err != nil {
		slog.Error("oauth federation failed", "provider", providerName, "error", err)
		return redirectWithError(c, st.Redirect, oauthErrorMessage(err))
	}

	return redirectWith(c, st.Redirect, "token", signed)
}

// oauthErrorMessage converts a federation failure into a user-facing message
// without leaking provider error bodies.
func oauthErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingEmail):
		return "your provider account has no usable email; make it public or register with email and password"
	case errors.Is(err, domain.ErrProviderExchange):
		return "could not complete sign-in with the provider, please retry"
	case errors.Is(err, domain.ErrInvalidInput):
		return "unknown provider"
	default:
		return "sign-in failed, please retry"
	}
}

func redirectWith(c echo.Context, target, key, value string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: bad redirect target", domain.ErrInvalidInput)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return c.Redirect(http.StatusFound, u.String())
}

func redirectWithError(c echo.Context, target, msg string) error {
	return redirectWith(c, target, "error", msg)
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
