package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth/login", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gov", body["tenant"])
		assert.Equal(t, "clerk", body["username"])

		json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
	}))
	defer srv.Close()

	token, err := NewClient(srv.URL).Login(context.Background(), "gov", Credentials{Username: "clerk", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
}

func TestLogin_RejectedMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Login(context.Background(), "gov", Credentials{Username: "clerk"})
	assert.ErrorIs(t, err, ErrLoginRejected)
}

func TestLogin_EmptyTokenFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Login(context.Background(), "gov", Credentials{Username: "clerk"})
	assert.ErrorContains(t, err, "no token")
}

func TestAccountRolesAndGrant(t *testing.T) {
	var grantedBody map[string][]Role
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/roles", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string][]Role{
				"roles": {{Name: "platform-user", TenantRoot: "gov"}},
			})
		case http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&grantedBody))
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL)

	roles, err := client.AccountRoles(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "platform-user", roles[0].Name)

	err = client.GrantRoles(context.Background(), "tok-1", []Role{{Name: "data-operator", TenantRoot: "gov.city"}})
	require.NoError(t, err)
	require.Len(t, grantedBody["roles"], 1)
	assert.Equal(t, "gov.city", grantedBody["roles"][0].TenantRoot)
}

func TestInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/services/registry/search", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{"entries": []string{"e-1"}})
	}))
	defer srv.Close()

	raw, err := NewClient(srv.URL).Invoke(context.Background(), "tok-1", "registry", "search",
		map[string]interface{}{"query": "smith"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "e-1")
}

func TestInvoke_ServerErrorIncludesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream registry is down"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Invoke(context.Background(), "tok-1", "registry", "search", nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "502")
	assert.ErrorContains(t, err, "upstream registry is down")
}

func TestBaseURLTrimsTrailingSlash(t *testing.T) {
	assert.Equal(t, "https://x.example", NewClient("https://x.example/").BaseURL())
}
