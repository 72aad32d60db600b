package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	githubOAuth "golang.org/x/oauth2/github"
	googleOAuth "golang.org/x/oauth2/google"

	"github.com/tasksched/tasksched/internal/domain"
	"github.com/tasksched/tasksched/internal/token"
)

// FederationConfig holds the provider credentials registered for this
// deployment. CallbackBaseURL is the fixed callback prefix registered with
// both providers; the provider name is appended to it.
type FederationConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GitHubClientID     string
	GitHubClientSecret string
	CallbackBaseURL    string
}

// federatedIdentity is the provider-independent shape user-info payloads are
// normalized into before the linking policy runs.
type federatedIdentity struct {
	providerID string
	email      string
	name       string
	login      string
	picture    string
}

// provider bundles the oauth2 exchange config with the endpoints queried
// after the exchange. emailsURL is set only for providers that may omit the
// email from the primary payload.
type provider struct {
	tag         domain.AuthProvider
	oauth       *oauth2.Config
	userInfoURL string
	emailsURL   string
	fetch       func(ctx context.Context, client *http.Client, p *provider, accessToken string) (*federatedIdentity, error)
}

// FederationService drives the OAuth2 authorization-code flow against Google
// and GitHub and applies the account-linking policy: a federated identity is
// matched to a local account by email alone.
type FederationService struct {
	users     UserStore
	codec     *token.Codec
	client    *http.Client
	providers map[string]*provider
}

// NewFederationService creates a FederationService for the two supported
// providers.
func NewFederationService(users UserStore, codec *token.Codec, cfg FederationConfig) *FederationService {
	base := strings.TrimRight(cfg.CallbackBaseURL, "/")
	return &FederationService{
		users:  users,
		codec:  codec,
		client: &http.Client{Timeout: 10 * time.Second},
		providers: map[string]*provider{
			"google": {
				tag: domain.AuthProviderGoogle,
				oauth: &oauth2.Config{
					ClientID:     cfg.GoogleClientID,
					ClientSecret: cfg.GoogleClientSecret,
					Endpoint:     googleOAuth.Endpoint,
					Scopes:       []string{"openid", "profile", "email"},
					RedirectURL:  base + "/google",
				},
				userInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
				fetch:       fetchGoogleIdentity,
			},
			"github": {
				tag: domain.AuthProviderGitHub,
				oauth: &oauth2.Config{
					ClientID:     cfg.GitHubClientID,
					ClientSecret: cfg.GitHubClientSecret,
					Endpoint:     githubOAuth.Endpoint,
					Scopes:       []string{"read:user", "user:email"},
					RedirectURL:  base + "/github",
				},
				userInfoURL: "https://api.github.com/user",
				emailsURL:   "https://api.github.com/user/emails",
				fetch:       fetchGitHubIdentity,
			},
		},
	}
}

// AuthorizeURL builds the provider's consent-page URL carrying the given
// state echo.
func (s *FederationService) AuthorizeURL(providerName, state string) (string, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return "", err
	}
	return p.oauth.AuthCodeURL(state), nil
}

// Exchange runs the full federation flow for one callback: code exchange,
// user-info normalization, link-or-create, credential issuance. It is
// terminal on the first failure; nothing is committed before the linking
// step, and the linking step is a single atomic upsert.
func (s *FederationService) Exchange(ctx context.Context, providerName, code string) (*domain.User, string, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return nil, "", err
	}

	// Route the exchange through the service's bounded-timeout client.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", domain.ErrProviderExchange, providerName, err)
	}
	if tok.AccessToken == "" {
		return nil, "", fmt.Errorf("%w: %s returned no access token", domain.ErrProviderExchange, providerName)
	}

	ident, err := p.fetch(ctx, s.client, p, tok.AccessToken)
	if err != nil {
		return nil, "", err
	}

	email := strings.ToLower(strings.TrimSpace(ident.email))
	if email == "" {
		return nil, "", fmt.Errorf("%w: make your %s email public or register with email and password",
			domain.ErrMissingEmail, providerName)
	}

	name := strings.TrimSpace(ident.name)
	if name == "" {
		name = strings.TrimSpace(ident.login)
	}
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	user, err := s.users.UpsertByEmail(ctx, domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: domain.OAuthPasswordSentinel,
		Provider:     p.tag,
		ProviderID:   &ident.providerID,
		PictureURL:   strPtr(ident.picture),
	})
	if err != nil {
		return nil, "", fmt.Errorf("link account: %w", err)
	}

	signed, err := s.codec.Issue(user.Email, user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, signed, nil
}

func (s *FederationService) provider(name string) (*provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidInput, name)
	}
	return p, nil
}

type googleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func fetchGoogleIdentity(ctx context.Context, client *http.Client, p *provider, accessToken string) (*federatedIdentity, error) {
	var info googleUserInfo
	if err := fetchJSON(ctx, client, p.userInfoURL, accessToken, nil, &info); err != nil {
		return nil, fmt.Errorf("fetch google user info: %w", err)
	}
	return &federatedIdentity{
		providerID: info.ID,
		email:      info.Email,
		name:       info.Name,
		picture:    info.Picture,
	}, nil
}

type githubUserInfo struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

var githubHeaders = map[string]string{"Accept": "application/vnd.github.v3+json"}

func fetchGitHubIdentity(ctx context.Context, client *http.Client, p *provider, accessToken string) (*federatedIdentity, error) {
	var info githubUserInfo
	if err := fetchJSON(ctx, client, p.userInfoURL, accessToken, githubHeaders, &info); err != nil {
		return nil, fmt.Errorf("fetch github user info: %w", err)
	}

	email := info.Email
	if email == "" {
		// GitHub commonly omits the email from /user; fall back to the
		// account's email list.
		var emails []githubEmail
		if err := fetchJSON(ctx, client, p.emailsURL, accessToken, githubHeaders, &emails); err != nil {
			return nil, fmt.Errorf("fetch github emails: %w", err)
		}
		email = selectGitHubEmail(emails)
	}

	return &federatedIdentity{
		providerID: fmt.Sprintf("%d", info.ID),
		email:      email,
		name:       info.Name,
		login:      info.Login,
		picture:    info.AvatarURL,
	}, nil
}

// selectGitHubEmail prefers the address marked both primary and verified,
// then any verified address. An unverified address is never trusted as a
// linking key.
func selectGitHubEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	return ""
}

func fetchJSON(ctx context.Context, client *http.Client, url, accessToken string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", url, err)
	}
	return nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
