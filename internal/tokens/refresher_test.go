package tokens

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"example.com/healthsync/internal/domain"
)

func TestEnsureValidSkipsFreshToken(t *testing.T) {
	endpoint := newTokenEndpoint(t, http.StatusOK, `{"access_token":"new","expires_in":3600,"token_type":"Bearer"}`)
	store := &memoryCredentials{}
	now := time.Now()
	refresher := NewRefresher(testOAuth(endpoint.URL), store, WithClock(func() time.Time { return now }))

	cred := domain.Credential{
		UserID:       "user-1",
		Provider:     domain.ProviderGoogleFit,
		AccessToken:  "current",
		RefreshToken: "refresh",
		ExpiresAt:    now.Add(RefreshLeeway + time.Second),
	}

	got, err := refresher.EnsureValid(context.Background(), cred)
	require.NoError(t, err)
	require.Equal(t, cred, got)
	require.Equal(t, 0, endpoint.calls())
	require.Equal(t, 0, store.writes)
}

func TestEnsureValidRefreshesNearExpiry(t *testing.T) {
	endpoint := newTokenEndpoint(t, http.StatusOK, `{"access_token":"fresh-access","expires_in":3600,"token_type":"Bearer","refresh_token":"rotated"}`)
	store := &memoryCredentials{}
	now := time.Now()
	refresher := NewRefresher(testOAuth(endpoint.URL), store, WithClock(func() time.Time { return now }))

	cred := domain.Credential{
		UserID:       "user-1",
		Provider:     domain.ProviderGoogleFit,
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		ExpiresAt:    now.Add(RefreshLeeway),
	}

	got, err := refresher.EnsureValid(context.Background(), cred)
	require.NoError(t, err)
	require.Equal(t, 1, endpoint.calls())
	require.Equal(t, 1, store.writes)

	require.Equal(t, "fresh-access", got.AccessToken)
	require.Equal(t, "refresh-1", got.RefreshToken, "refresh token must not be replaced")
	require.WithinDuration(t, now.Add(time.Hour), got.ExpiresAt, 2*time.Second)
	require.Equal(t, got, store.last)

	form := endpoint.lastForm()
	require.Equal(t, "refresh_token", form.Get("grant_type"))
	require.Equal(t, "refresh-1", form.Get("refresh_token"))
	require.Equal(t, "client-id", form.Get("client_id"))
	require.Equal(t, "client-secret", form.Get("client_secret"))
}

func TestEnsureValidRequiresReauthWithoutRefreshToken(t *testing.T) {
	endpoint := newTokenEndpoint(t, http.StatusOK, `{}`)
	store := &memoryCredentials{}
	refresher := NewRefresher(testOAuth(endpoint.URL), store)

	cred := domain.Credential{
		UserID:      "user-1",
		Provider:    domain.ProviderGoogleFit,
		AccessToken: "stale",
		ExpiresAt:   time.Now().Add(-time.Hour),
	}

	_, err := refresher.EnsureValid(context.Background(), cred)
	require.ErrorIs(t, err, domain.ErrReauthRequired)
	require.Equal(t, 0, endpoint.calls())
	require.Equal(t, 0, store.writes)
}

func TestEnsureValidReportsRejectedRefresh(t *testing.T) {
	endpoint := newTokenEndpoint(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)
	store := &memoryCredentials{}
	refresher := NewRefresher(testOAuth(endpoint.URL), store)

	cred := domain.Credential{
		UserID:       "user-1",
		Provider:     domain.ProviderGoogleFit,
		AccessToken:  "stale",
		RefreshToken: "revoked",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}

	got, err := refresher.EnsureValid(context.Background(), cred)
	require.ErrorIs(t, err, domain.ErrRefreshFailed)
	require.NotErrorIs(t, err, domain.ErrReauthRequired)
	require.Equal(t, "stale", got.AccessToken)
	require.Equal(t, 1, endpoint.calls())
	require.Equal(t, 0, store.writes)
}

func testOAuth(tokenURL string) *oauth2.Config {
	return NewOAuth2Config(OAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost/v1/fit/callback",
		TokenURL:     tokenURL,
	})
}

type tokenEndpoint struct {
	*httptest.Server
	mu    sync.Mutex
	count int
	form  map[string][]string
}

func newTokenEndpoint(t *testing.T, status int, body string) *tokenEndpoint {
	t.Helper()
	e := &tokenEndpoint{}
	e.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		e.mu.Lock()
		e.count++
		e.form = r.PostForm
		e.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(e.Close)
	return e
}

func (e *tokenEndpoint) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

func (e *tokenEndpoint) lastForm() formValues {
	e.mu.Lock()
	defer e.mu.Unlock()
	return formValues(e.form)
}

type formValues map[string][]string

func (f formValues) Get(key string) string {
	if values := f[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

type memoryCredentials struct {
	mu     sync.Mutex
	writes int
	last   domain.Credential
}

func (m *memoryCredentials) GetCredential(context.Context, string, string) (*domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writes == 0 {
		return nil, nil
	}
	cred := m.last
	return &cred, nil
}

func (m *memoryCredentials) UpsertCredential(_ context.Context, cred domain.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.last = cred
	return nil
}

func (m *memoryCredentials) ListCredentialUsers(context.Context, string) ([]string, error) {
	return nil, nil
}
