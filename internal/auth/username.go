package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/sakif/contribhub/internal/model"
)

// DefaultGitHubAPI is the base URL for GitHub's REST API.
const DefaultGitHubAPI = "https://api.github.com"

// ClaimSource is one place a GitHub username might be found in a sign-in
// result. Extract returns "" when the source has nothing.
type ClaimSource interface {
	Name() string
	Extract(ctx context.Context, r *SignInResult) string
}

// NamedClaim reads the username the provider reported directly.
type NamedClaim struct{}

func (NamedClaim) Name() string { return "named" }

func (NamedClaim) Extract(_ context.Context, r *SignInResult) string {
	return strings.TrimSpace(r.AdditionalInfo.Username)
}

// ProfileClaim reads the "login" field of the raw profile payload.
type ProfileClaim struct{}

func (ProfileClaim) Name() string { return "profile" }

func (ProfileClaim) Extract(_ context.Context, r *SignInResult) string {
	login, _ := r.AdditionalInfo.Profile["login"].(string)
	return strings.TrimSpace(login)
}

// LinkageClaim reads the uid of the first linked identity with ProviderID.
// The uid is returned verbatim.
type LinkageClaim struct {
	ProviderID string
}

func (LinkageClaim) Name() string { return "linkage" }

func (c LinkageClaim) Extract(_ context.Context, r *SignInResult) string {
	for _, link := range r.ProviderLinks {
		if link.ProviderID == c.ProviderID {
			if link.UID != "" {
				return link.UID
			}
		}
	}
	return ""
}

// RemoteLookupClaim asks GitHub who owns the access token.
//
// Any failure (no token, network error, non-2xx, bad payload) is logged and
// reported as "", never as an error.
type RemoteLookupClaim struct {
	// BaseURL defaults to DefaultGitHubAPI.
	BaseURL string
	// Client defaults to http.DefaultClient. The bearer token is added on top.
	Client *http.Client
	Logger *slog.Logger
}

func (RemoteLookupClaim) Name() string { return "remote" }

func (c RemoteLookupClaim) Extract(ctx context.Context, r *SignInResult) string {
	if r.Provider != model.ProviderGitHub || r.AccessToken == "" {
		return ""
	}

	user, err := fetchGitHubUser(ctx, c.Client, c.BaseURL, r.AccessToken)
	if err != nil {
		if c.Logger != nil {
			c.Logger.Warn("github user lookup failed", slog.String("error", err.Error()))
		}
		return ""
	}
	return strings.TrimSpace(user.Login)
}

// UsernameExtractor walks its claim sources in order and keeps the first
// non-empty answer.
type UsernameExtractor struct {
	sources []ClaimSource
	logger  *slog.Logger
}

// NewUsernameExtractor builds the standard chain:
//
//	named → profile → linkage(github.com) → remote lookup
func NewUsernameExtractor(remote RemoteLookupClaim, logger *slog.Logger) *UsernameExtractor {
	if remote.Logger == nil {
		remote.Logger = logger
	}
	return &UsernameExtractor{
		sources: []ClaimSource{
			NamedClaim{},
			ProfileClaim{},
			LinkageClaim{ProviderID: GitHubLinkProviderID},
			remote,
		},
		logger: logger,
	}
}

// ExtractGitHubUsername returns the GitHub username for a sign-in, or nil
// when no source has one. Only GitHub sign-ins carry a username.
func (e *UsernameExtractor) ExtractGitHubUsername(ctx context.Context, r *SignInResult) *string {
	if r == nil || r.Provider != model.ProviderGitHub {
		return nil
	}

	for _, src := range e.sources {
		if name := src.Extract(ctx, r); name != "" {
			e.logger.Debug("github username resolved",
				slog.String("uid", r.StableUserID),
				slog.String("source", src.Name()),
			)
			return &name
		}
	}
	return nil
}

// gitHubUser is the part of GET /user this service reads.
type gitHubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// fetchGitHubUser calls GET /user with the given access token.
func fetchGitHubUser(ctx context.Context, client *http.Client, baseURL, accessToken string) (*gitHubUser, error) {
	user, _, err := fetchGitHubUserRaw(ctx, client, baseURL, accessToken)
	return user, err
}

// fetchGitHubUserRaw is fetchGitHubUser that also returns the untyped payload.
func fetchGitHubUserRaw(ctx context.Context, client *http.Client, baseURL, accessToken string) (*gitHubUser, map[string]any, error) {
	if baseURL == "" {
		baseURL = DefaultGitHubAPI
	}
	if client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/user", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("auth: building GitHub /user request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("auth: calling GitHub /user API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("auth: GitHub /user API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("auth: reading GitHub /user response: %w", err)
	}

	var user gitHubUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, nil, fmt.Errorf("auth: decoding GitHub /user response: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, nil, fmt.Errorf("auth: decoding GitHub /user response: %w", err)
	}

	return &user, raw, nil
}
