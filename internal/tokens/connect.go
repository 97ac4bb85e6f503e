package tokens

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"example.com/healthsync/internal/domain"
)

// ErrExchangeFailed is returned when the authorization code cannot be exchanged.
var ErrExchangeFailed = errors.New("authorization code exchange failed")

// Connector creates the initial credential from an OAuth authorization code.
type Connector struct {
	oauth      *oauth2.Config
	store      domain.CredentialStore
	httpClient *http.Client
	now        func() time.Time
}

// NewConnector constructs a Connector.
func NewConnector(oauth *oauth2.Config, store domain.CredentialStore, client *http.Client) *Connector {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Connector{oauth: oauth, store: store, httpClient: client, now: time.Now}
}

// AuthCodeURL returns the consent URL. Offline access and a forced consent
// prompt make Google issue a refresh token.
func (c *Connector) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange swaps the code for tokens and upserts the user's credential.
// The refresh token may be absent when consent was not re-prompted.
func (c *Connector) Exchange(ctx context.Context, userID, code string) (domain.Credential, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	now := c.now()
	cred := domain.Credential{
		UserID:       userID,
		Provider:     domain.ProviderGoogleFit,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		UpdatedAt:    now,
	}
	if cred.ExpiresAt.IsZero() {
		cred.ExpiresAt = now
	}
	if err := c.store.UpsertCredential(ctx, cred); err != nil {
		return domain.Credential{}, fmt.Errorf("store credential: %w", err)
	}
	return cred, nil
}
