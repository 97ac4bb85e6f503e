package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureSchemaUsesLatestVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/subjects/weight_logged-value/versions/latest", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":7,"version":3}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL+"/").EnsureSchema(context.Background(), "weight_logged-value", weightLoggedSchema)
	require.NoError(t, err)
	require.Equal(t, 7, id)
}

func TestEnsureSchemaRegistersMissingSubject(t *testing.T) {
	var registered map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		require.Equal(t, "/subjects/fit_weight_synced-value/versions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&registered))
		_, _ = w.Write([]byte(`{"id":12}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "fit_weight_synced-value", weightSyncedSchema)
	require.NoError(t, err)
	require.Equal(t, 12, id)
	require.Equal(t, "JSON", registered["schemaType"])
	require.JSONEq(t, weightSyncedSchema, registered["schema"])
}

func TestEnsureSchemaDoesNotRegisterOnServerError(t *testing.T) {
	posts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts++
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "weight_logged-value", weightLoggedSchema)
	require.ErrorContains(t, err, "status 500")
	require.Zero(t, posts)
}
