// Package tokens manages the Google OAuth credential lifecycle: refresh before
// expiry, authorization-code exchange, and the signed state used by the connect flow.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/observability"
)

// RefreshLeeway is how long before expiry an access token is treated as stale.
const RefreshLeeway = 5 * time.Minute

// FitnessScopes are the read-only scopes requested during consent.
var FitnessScopes = []string{
	"https://www.googleapis.com/auth/fitness.activity.read",
	"https://www.googleapis.com/auth/fitness.body.read",
	"https://www.googleapis.com/auth/fitness.heart_rate.read",
}

// OAuthConfig describes the Google OAuth client.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// TokenURL overrides the Google token endpoint, e.g. in tests.
	TokenURL string
}

// NewOAuth2Config builds the oauth2 client configuration. Credentials are sent
// in the form body, the way Google's token endpoint documents it.
func NewOAuth2Config(cfg OAuthConfig) *oauth2.Config {
	endpoint := google.Endpoint
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       FitnessScopes,
	}
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithHTTPClient sets the client used for token endpoint calls.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Refresher) {
		r.httpClient = client
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) {
		r.now = now
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Refresher) {
		r.logger = logger
	}
}

// Refresher keeps a credential usable, exchanging its refresh token when the
// access token is at or near expiry.
type Refresher struct {
	oauth      *oauth2.Config
	store      domain.CredentialStore
	httpClient *http.Client
	now        func() time.Time
	logger     *log.Logger
}

// NewRefresher constructs a Refresher that persists refreshed credentials to store.
func NewRefresher(oauth *oauth2.Config, store domain.CredentialStore, opts ...Option) *Refresher {
	r := &Refresher{
		oauth:      oauth,
		store:      store,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureValid returns cred unchanged while it has more than RefreshLeeway left.
// Otherwise it refreshes once and persists the new access token and expiry. The
// refresh token is kept as is because Google does not always reissue it.
func (r *Refresher) EnsureValid(ctx context.Context, cred domain.Credential) (domain.Credential, error) {
	now := r.now()
	if now.Before(cred.ExpiresAt.Add(-RefreshLeeway)) {
		return cred, nil
	}
	if !cred.HasRefreshToken() {
		observability.RecordTokenRefresh("reauth_required")
		return cred, domain.ErrReauthRequired
	}

	r.logger.Info("refreshing google token", "user_id", cred.UserID)

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	token, err := r.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		observability.RecordTokenRefresh("failed")
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			r.logger.Error("token refresh rejected", "user_id", cred.UserID, "status", retrieveErr.Response.StatusCode, "body", string(retrieveErr.Body))
			return cred, fmt.Errorf("%w: status %d", domain.ErrRefreshFailed, retrieveErr.Response.StatusCode)
		}
		r.logger.Error("token refresh failed", "user_id", cred.UserID, "err", err)
		return cred, fmt.Errorf("%w: %v", domain.ErrRefreshFailed, err)
	}
	if token.AccessToken == "" {
		observability.RecordTokenRefresh("failed")
		return cred, fmt.Errorf("%w: empty access token", domain.ErrRefreshFailed)
	}

	refreshed := cred
	refreshed.AccessToken = token.AccessToken
	refreshed.ExpiresAt = r.expiry(now, token)
	refreshed.UpdatedAt = now

	if err := r.store.UpsertCredential(ctx, refreshed); err != nil {
		observability.RecordTokenRefresh("failed")
		return cred, fmt.Errorf("persist refreshed credential: %w", err)
	}
	observability.RecordTokenRefresh("refreshed")
	return refreshed, nil
}

// expiry anchors expires_in to the injected clock. oauth2 computes Expiry from
// its own wall clock, so the offset is recovered from it.
func (r *Refresher) expiry(now time.Time, token *oauth2.Token) time.Time {
	if token.Expiry.IsZero() {
		return now
	}
	lifetime := time.Until(token.Expiry).Round(time.Second)
	if lifetime < 0 {
		lifetime = 0
	}
	return now.Add(lifetime)
}
