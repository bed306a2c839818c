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
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// 🛰️ RESTClient is a small JSON client for providers without a Go SDK in use here.
// Relative references resolve against BaseURL; absolute references (pagination links)
// are used as is.
type RESTClient struct {
	BaseURL  *url.URL
	HTTP     *http.Client
	Username string
	Password string
}

// NewRESTClient parses baseURL and makes sure relative references resolve below it.
func NewRESTClient(baseURL string, client *http.Client) (*RESTClient, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Errorf("parsing api endpoint %q: %w", baseURL, err)
	}
	if client == nil {
		client = &http.Client{Transport: NewRateLimitedTransport(nil)}
	}
	return &RESTClient{BaseURL: u, HTTP: client}, nil
}

// WithBasicAuth returns a copy of the client that authenticates every request.
func (c *RESTClient) WithBasicAuth(username, password string) *RESTClient {
	cp := *c
	cp.Username = username
	cp.Password = password
	return &cp
}

// EscapePath escapes each segment of a repository path.
func EscapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func (c *RESTClient) resolve(ref string, query url.Values) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", errors.Errorf("parsing reference %q: %w", ref, err)
	}
	if !u.IsAbs() {
		u = c.BaseURL.ResolveReference(u)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *RESTClient) do(ctx context.Context, ref string, query url.Values) (*http.Response, error) {
	target, err := c.resolve(ref, query)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Errorf("building request: %w", err)
	}
	if c.Username != "" || c.Password != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}

	zerolog.Ctx(ctx).Trace().Str("url", target).Msg("GET")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, errors.Errorf("requesting %s: %w", target, err)
	}
	if err := CheckResponse(resp); err != nil {
		resp.Body.Close()
		return nil, errors.Errorf("GET %s: %w", target, err)
	}
	return resp, nil
}

// GetJSON decodes the response body into out. A 204 leaves out untouched.
func (c *RESTClient) GetJSON(ctx context.Context, ref string, query url.Values, out any) error {
	resp, err := c.do(ctx, ref, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Errorf("decoding %s: %w", ref, err)
	}
	return nil
}

// GetRaw returns the response body.
func (c *RESTClient) GetRaw(ctx context.Context, ref string, query url.Values) ([]byte, error) {
	resp, err := c.do(ctx, ref, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Errorf("reading %s: %w", ref, err)
	}
	return body, nil
}
