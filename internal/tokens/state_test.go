package tokens

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthsync/internal/domain"
)

func TestStateRoundTrip(t *testing.T) {
	signer := NewStateSigner("secret", "healthsync", time.Minute)

	state, err := signer.Sign("user-42")
	require.NoError(t, err)

	userID, err := signer.Verify(state)
	require.NoError(t, err)
	require.Equal(t, "user-42", userID)
}

func TestStateRejectsForgery(t *testing.T) {
	signer := NewStateSigner("secret", "healthsync", time.Minute)
	other := NewStateSigner("other-secret", "healthsync", time.Minute)

	forged, err := other.Sign("user-42")
	require.NoError(t, err)

	_, err = signer.Verify(forged)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = signer.Verify("")
	require.ErrorIs(t, err, ErrInvalidState)

	wrongIssuer := NewStateSigner("secret", "someone-else", time.Minute)
	state, err := wrongIssuer.Sign("user-42")
	require.NoError(t, err)
	_, err = signer.Verify(state)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestConnectorAuthCodeURLRequestsOfflineConsent(t *testing.T) {
	connector := NewConnector(testOAuth("http://127.0.0.1/token"), &memoryCredentials{}, nil)

	raw := connector.AuthCodeURL("state-token")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	query := parsed.Query()
	require.Equal(t, "offline", query.Get("access_type"))
	require.Equal(t, "consent", query.Get("prompt"))
	require.Equal(t, "state-token", query.Get("state"))
	require.Contains(t, query.Get("scope"), "fitness.activity.read")
	require.Contains(t, query.Get("scope"), "fitness.body.read")
	require.Contains(t, query.Get("scope"), "fitness.heart_rate.read")
}

func TestConnectorExchangeStoresCredential(t *testing.T) {
	endpoint := newTokenEndpoint(t, http.StatusOK, `{"access_token":"access-1","refresh_token":"refresh-1","expires_in":3600,"token_type":"Bearer"}`)
	store := &memoryCredentials{}
	connector := NewConnector(testOAuth(endpoint.URL), store, endpoint.Client())

	cred, err := connector.Exchange(context.Background(), "user-1", "auth-code")
	require.NoError(t, err)
	require.Equal(t, "access-1", cred.AccessToken)
	require.Equal(t, "refresh-1", cred.RefreshToken)
	require.Equal(t, domain.ProviderGoogleFit, cred.Provider)
	require.WithinDuration(t, time.Now().Add(time.Hour), cred.ExpiresAt, 5*time.Second)

	require.Equal(t, 1, store.writes)
	require.Equal(t, "authorization_code", endpoint.lastForm().Get("grant_type"))
	require.Equal(t, "auth-code", endpoint.lastForm().Get("code"))
}

func TestConnectorExchangeFailure(t *testing.T) {
	endpoint := newTokenEndpoint(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)
	store := &memoryCredentials{}
	connector := NewConnector(testOAuth(endpoint.URL), store, nil)

	_, err := connector.Exchange(context.Background(), "user-1", "bad-code")
	require.ErrorIs(t, err, ErrExchangeFailed)
	require.Equal(t, 0, store.writes)
}
