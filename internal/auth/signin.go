package auth

import "github.com/sakif/contribhub/internal/model"

// GitHubLinkProviderID is the provider id that marks a GitHub linkage.
const GitHubLinkProviderID = "github.com"

// SignInResult is what a provider hands back after a successful sign-in.
// Everything but Provider and StableUserID is optional.
type SignInResult struct {
	Provider       model.Provider
	StableUserID   string
	Email          string
	PhotoURL       string
	AdditionalInfo AdditionalInfo
	ProviderLinks  []ProviderLink
	AccessToken    string
}

// AdditionalInfo is the loosely shaped extra data a provider returns.
// Profile is the raw user payload, decoded without a schema.
type AdditionalInfo struct {
	Username string
	Profile  map[string]any
}

// ProviderLink is one identity linked to the signed-in account.
type ProviderLink struct {
	ProviderID string
	UID        string
}

// Identity returns the session identity for the result.
func (r *SignInResult) Identity() Identity {
	return Identity{
		UID:      r.StableUserID,
		Email:    r.Email,
		PhotoURL: r.PhotoURL,
		Provider: r.Provider,
	}
}
