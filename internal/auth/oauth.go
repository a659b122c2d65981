package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/sakif/contribhub/internal/model"
)

var (
	ErrProviderNotFound = errors.New("auth: provider not found")
	ErrProviderConflict = errors.New("auth: provider already registered")
	// ErrAuthFailed means the provider rejected the sign-in (bad or reused
	// code, user denied consent, state mismatch).
	ErrAuthFailed = errors.New("auth: sign-in failed")
)

// Provider performs the authorization-code flow against one identity provider.
type Provider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*SignInResult, error)
}

// Providers is the registry of configured identity providers.
type Providers struct {
	mu        sync.RWMutex
	providers map[model.Provider]Provider
}

func NewProviders() *Providers {
	return &Providers{providers: make(map[model.Provider]Provider)}
}

// Use registers p under name.
func (ps *Providers) Use(name model.Provider, p Provider) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, ok := ps.providers[name]; ok {
		return ErrProviderConflict
	}
	ps.providers[name] = p
	return nil
}

// Get returns the provider registered under name.
func (ps *Providers) Get(name model.Provider) (Provider, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	p, ok := ps.providers[name]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return p, nil
}

// Exchange runs p's code exchange and folds provider-side rejections into
// ErrAuthFailed.
func (ps *Providers) Exchange(ctx context.Context, name model.Provider, code string) (*SignInResult, error) {
	p, err := ps.Get(name)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, ErrAuthFailed
	}

	res, err := p.Exchange(ctx, code)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			if rerr.Response.StatusCode == http.StatusBadRequest || rerr.Response.StatusCode == http.StatusUnauthorized {
				return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
			}
		}
		return nil, fmt.Errorf("auth: exchange with %s: %w", name, err)
	}
	return res, nil
}

// GitHubConfig configures the GitHub provider. Endpoint and APIBaseURL
// default to github.com.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Endpoint     oauth2.Endpoint
	APIBaseURL   string
	HTTPClient   *http.Client
}

// GitHubProvider handles the GitHub OAuth2 flow.
type GitHubProvider struct {
	config     *oauth2.Config
	apiBaseURL string
	httpClient *http.Client
}

// NewGitHubProvider creates a GitHubProvider.
//
// read:user and user:email are the scopes the username lookup needs.
func NewGitHubProvider(cfg GitHubConfig) *GitHubProvider {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = github.Endpoint
	}
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     endpoint,
		},
		apiBaseURL: cfg.APIBaseURL,
		httpClient: cfg.HTTPClient,
	}
}

// AuthURL returns the GitHub authorization URL for state.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades code for an access token and reads the account's profile.
//
// The profile login is reported both as the named username and as the
// github.com linkage, so the username chain resolves without a second call.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*SignInResult, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	user, raw, err := fetchGitHubUserRaw(ctx, p.httpClient, p.apiBaseURL, tok.AccessToken)
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}

	res := &SignInResult{
		Provider:     model.ProviderGitHub,
		StableUserID: "github:" + strconv.FormatInt(user.ID, 10),
		Email:        user.Email,
		PhotoURL:     user.AvatarURL,
		AdditionalInfo: AdditionalInfo{
			Username: user.Login,
			Profile:  raw,
		},
		AccessToken: tok.AccessToken,
	}
	if user.Login != "" {
		res.ProviderLinks = []ProviderLink{{ProviderID: GitHubLinkProviderID, UID: user.Login}}
	}
	return res, nil
}
