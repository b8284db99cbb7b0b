// Package identity resolves provider credentials to client ids.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ghaditya/spotify-group-session/internal/core"
	"github.com/ghaditya/spotify-group-session/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultSpotifyBaseURL = "https://api.spotify.com"

// Spotify resolves an access token through the Web API profile endpoint.
// The profile uri (spotify:user:<id>) is used as the client id.
type Spotify struct {
	BaseURL string
	Client  *http.Client
}

var _ core.IdentityResolver = (*Spotify)(nil)

func NewSpotify(baseURL string, timeout time.Duration) *Spotify {
	if baseURL == "" {
		baseURL = DefaultSpotifyBaseURL
	}
	return &Spotify{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

type spotifyProfile struct {
	URI string `json:"uri"`
}

// Resolve fails with domain.ErrAuth when Spotify rejects the token and with
// a store-class error when Spotify cannot be reached or fails on its side,
// so callers retry instead of re-authenticating.
func (s *Spotify) Resolve(ctx context.Context, proof domain.IdentityProof) (domain.ClientID, error) {
	token := proof.Credential.AccessToken
	if token == "" {
		return "", fmt.Errorf("%w: missing access token", domain.ErrAuth)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/v1/me", nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrAuth, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.Client.Do(req)
	if err != nil {
		log.Warn().Str("module", "adapters.identity").Err(err).Msg("spotify profile request failed")
		return "", domain.StoreError("spotify profile", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		log.Warn().Str("module", "adapters.identity").Int("status", resp.StatusCode).Msg("spotify unavailable")
		return "", domain.StoreError("spotify profile", fmt.Errorf("spotify returned %s", resp.Status))
	}
	if resp.StatusCode != http.StatusOK {
		log.Info().Str("module", "adapters.identity").Int("status", resp.StatusCode).Msg("spotify rejected token")
		return "", fmt.Errorf("%w: spotify returned %s", domain.ErrAuth, resp.Status)
	}
	var profile spotifyProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", domain.StoreError("spotify profile", err)
	}
	if profile.URI == "" {
		return "", fmt.Errorf("%w: spotify profile has no uri", domain.ErrAuth)
	}
	return domain.ClientID(profile.URI), nil
}
