// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/repofetch/pkg/credentials"
	"github.com/walteh/repofetch/pkg/source"
	"gitlab.com/tozd/go/errors"
)

func testContext(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.TraceLevel)
	return logger.WithContext(context.Background())
}

func TestStatusError(t *testing.T) {
	exhausted := http.Header{}
	exhausted.Set(HeaderRateRemaining, "0")

	tests := []struct {
		name    string
		code    int
		header  http.Header
		wantErr error
	}{
		{name: "not_found", code: 404, wantErr: ErrNotFound},
		{name: "unauthorized", code: 401, wantErr: ErrAuthFailure},
		{name: "forbidden", code: 403, wantErr: ErrAuthFailure},
		{name: "forbidden_quota_exhausted", code: 403, header: exhausted, wantErr: ErrRateLimited},
		{name: "too_many_requests", code: 429, wantErr: ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := StatusError(tt.code, tt.header, "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
		})
	}

	t.Run("server_error_is_unclassified", func(t *testing.T) {
		err := StatusError(500, nil, "boom")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
		assert.False(t, errors.Is(err, ErrNotFound))
	})
}

func TestRESTClient(t *testing.T) {
	ctx := testContext(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/2.0/repositories/org/repo":
			user, pass, ok := r.BasicAuth()
			if !ok || user != "me" || pass != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"repo","page":"` + r.URL.Query().Get("page") + `"}`))
		case "/api/2.0/raw/a%20b.txt", "/api/2.0/raw/a b.txt":
			_, _ = w.Write([]byte("raw bytes"))
		case "/api/2.0/empty":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := NewRESTClient(srv.URL+"/api/2.0", srv.Client())
	require.NoError(t, err)

	t.Run("json_with_basic_auth_and_query", func(t *testing.T) {
		var out struct {
			Name string `json:"name"`
			Page string `json:"page"`
		}
		err := client.WithBasicAuth("me", "secret").GetJSON(ctx, "repositories/org/repo", url.Values{"page": {"2"}}, &out)
		require.NoError(t, err)
		assert.Equal(t, "repo", out.Name)
		assert.Equal(t, "2", out.Page)
	})

	t.Run("absolute_reference", func(t *testing.T) {
		var out map[string]any
		err := client.WithBasicAuth("me", "secret").GetJSON(ctx, srv.URL+"/api/2.0/repositories/org/repo", nil, &out)
		require.NoError(t, err)
		assert.Equal(t, "repo", out["name"])
	})

	t.Run("missing_auth", func(t *testing.T) {
		var out map[string]any
		err := client.GetJSON(ctx, "repositories/org/repo", nil, &out)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrAuthFailure))
	})

	t.Run("raw_with_escaped_path", func(t *testing.T) {
		body, err := client.GetRaw(ctx, "raw/"+EscapePath("/a b.txt"), nil)
		require.NoError(t, err)
		assert.Equal(t, "raw bytes", string(body))
	})

	t.Run("no_content", func(t *testing.T) {
		out := map[string]any{"kept": true}
		require.NoError(t, client.GetJSON(ctx, "empty", nil, &out))
		assert.Equal(t, true, out["kept"])
	})

	t.Run("not_found", func(t *testing.T) {
		_, err := client.GetRaw(ctx, "nope", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestRateLimitedTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderRateRemaining, "4999")
		w.Header().Set(HeaderRateReset, "1700000000")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	transport := NewRateLimitedTransport(srv.Client().Transport)
	assert.Equal(t, -1, transport.remaining, "quota should be unknown before any response")

	client := &http.Client{Transport: transport}
	req, err := http.NewRequestWithContext(testContext(t), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 4999, transport.remaining, "quota should be read from headers")
}

func TestGetProvider(t *testing.T) {
	ctx := testContext(t)

	var gotCred credentials.Credential
	RegisterProvider("fake-provider", func(ctx context.Context, src source.Source, cred credentials.Credential) (Provider, error) {
		gotCred = cred
		return nil, nil
	})
	defer delete(registry, "fake-provider")

	src, err := source.New(source.GitHub, "org/repo")
	require.NoError(t, err)

	creds := []credentials.Credential{
		credentials.GitSource("gitlab.com", "", "other"),
		credentials.GitSource("github.com", "", "mine"),
	}

	registry[source.GitHub] = registry["fake-provider"]
	defer delete(registry, source.GitHub)

	_, err = GetProvider(ctx, src, creds)
	require.NoError(t, err)
	assert.Equal(t, "mine", gotCred.Password(), "credential for the source host should be passed")

	delete(registry, source.GitHub)
	_, err = GetProvider(ctx, src, creds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider github not found")
}
