// Package token hands out valid upstream access tokens, refreshing expired
// GitHub credentials on demand.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
	"golang.org/x/sync/singleflight"

	"github.com/btouchard/sprintdesk/internal/store"
)

const refreshTimeout = 30 * time.Second

// CredentialStore is the subset of the store the provider reads and writes.
type CredentialStore interface {
	GetCredential(userID, provider string) (*store.Credential, error)
	UpdateCredentialTokens(userID, provider string, t store.TokenUpdate) error
}

// UserLookup resolves the login behind an access token.
type UserLookup interface {
	CurrentUser(ctx context.Context, token string) (string, error)
}

// Config configures the OAuth application used for refresh exchanges.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string       // defaults to GitHub's token endpoint
	HTTPClient   *http.Client // optional client for the exchange
}

// Provider returns valid access tokens for users. An empty token with a nil
// error means the user is not connected; callers degrade instead of failing.
type Provider struct {
	store      CredentialStore
	users      UserLookup
	oauth      *oauth2.Config
	httpClient *http.Client
	now        func() time.Time

	// Concurrent refreshes for one user share a single exchange so the
	// rotated refresh token is only presented once.
	refreshes singleflight.Group
}

// NewProvider creates a Provider.
func NewProvider(st CredentialStore, users UserLookup, cfg Config) *Provider {
	endpoint := githuboauth.Endpoint
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Provider{
		store: st,
		users: users,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
		},
		httpClient: httpClient,
		now:        time.Now,
	}
}

// ValidToken returns a currently valid access token for userID, refreshing it
// when the stored one has expired. The error is non-nil only for store faults.
func (p *Provider) ValidToken(ctx context.Context, userID string) (string, error) {
	cred, err := p.store.GetCredential(userID, store.ProviderGitHub)
	if errors.Is(err, store.ErrNotFound) {
		slog.Debug("no github credential", "user_id", userID)
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if cred.AccessToken == "" {
		slog.Debug("github credential has no access token", "user_id", userID)
		return "", nil
	}

	if !p.expired(cred) {
		return cred.AccessToken, nil
	}

	if cred.RefreshToken == "" {
		slog.Warn("github token expired and no refresh token is stored", "user_id", userID)
		return "", nil
	}

	v, _, _ := p.refreshes.Do(userID, func() (interface{}, error) {
		// A refresh that finished while this caller was reading has already rotated the pair.
		if latest, err := p.store.GetCredential(userID, store.ProviderGitHub); err == nil {
			if latest.AccessToken != "" && !p.expired(latest) {
				return latest.AccessToken, nil
			}
			cred = latest
		}
		// The exchange is shared by every waiting caller and consumes the
		// rotating refresh token, so it must outlive the first caller's request.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return p.refresh(rctx, cred), nil
	})
	return v.(string), nil
}

// Username returns the upstream login of userID, or "" when the user is not
// connected or the identity lookup fails.
func (p *Provider) Username(ctx context.Context, userID string) string {
	tok, err := p.ValidToken(ctx, userID)
	if err != nil {
		slog.Error("reading github credential", "user_id", userID, "error", err)
		return ""
	}
	if tok == "" {
		return ""
	}
	login, err := p.users.CurrentUser(ctx, tok)
	if err != nil {
		slog.Warn("github identity lookup failed", "user_id", userID, "error", err)
		return ""
	}
	return login
}

func (p *Provider) expired(c *store.Credential) bool {
	if c.ExpiresAt == nil || *c.ExpiresAt == 0 {
		return false
	}
	return *c.ExpiresAt < p.now().Unix()
}

// refresh exchanges the stored refresh token and persists the rotated pair in
// one write. Any failure yields "".
func (p *Provider) refresh(ctx context.Context, cred *store.Credential) string {
	slog.Info("refreshing expired github token", "user_id", cred.UserID)

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			slog.Warn("github token refresh rejected", "user_id", cred.UserID,
				"error", retrieveErr.ErrorCode, "description", retrieveErr.ErrorDescription)
		} else {
			slog.Warn("github token refresh failed", "user_id", cred.UserID, "error", err)
		}
		return ""
	}

	now := p.now()
	update := store.TokenUpdate{
		AccessToken:           tok.AccessToken,
		RefreshToken:          tok.RefreshToken,
		RefreshTokenExpiresIn: extraInt(tok, "refresh_token_expires_in"),
	}
	if secs := extraInt(tok, "expires_in"); secs != nil {
		exp := now.Unix() + *secs
		update.ExpiresAt = &exp
	} else if !tok.Expiry.IsZero() {
		exp := tok.Expiry.Unix()
		update.ExpiresAt = &exp
	}

	if err := p.store.UpdateCredentialTokens(cred.UserID, store.ProviderGitHub, update); err != nil {
		slog.Error("persisting refreshed github token", "user_id", cred.UserID, "error", err)
		return ""
	}

	slog.Info("github token refreshed", "user_id", cred.UserID)
	return tok.AccessToken
}

// extraInt reads a numeric field of the token response. JSON bodies yield
// float64, form-encoded bodies yield strings.
func extraInt(tok *oauth2.Token, key string) *int64 {
	var n int64
	switch v := tok.Extra(key).(type) {
	case float64:
		n = int64(v)
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return nil
		}
		n = i
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil
		}
		n = i
	default:
		return nil
	}
	if n <= 0 {
		return nil
	}
	return &n
}
