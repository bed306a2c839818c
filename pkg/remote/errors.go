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
	"io"
	"net/http"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// Failure taxonomy shared by every provider client. Callers test with errors.Is.
var (
	ErrNotFound        = errors.Base("not found")
	ErrAuthFailure     = errors.Base("authentication failed")
	ErrRateLimited     = errors.Base("rate limited")
	ErrUnsupported     = errors.Base("unsupported")
	ErrNotAFile        = errors.Base("path is a directory, not a file")
	ErrEmptyRepository = errors.Base("repository is empty")
)

// StatusError maps an HTTP status to the failure taxonomy. A 403 counts as rate
// limiting only when the quota header says nothing is left.
func StatusError(code int, header http.Header, detail string) error {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		detail = http.StatusText(code)
	}

	switch {
	case code == http.StatusNotFound:
		return errors.Errorf("%s: %w", detail, ErrNotFound)
	case code == http.StatusUnauthorized:
		return errors.Errorf("%s: %w", detail, ErrAuthFailure)
	case code == http.StatusTooManyRequests:
		return errors.Errorf("%s: %w", detail, ErrRateLimited)
	case code == http.StatusForbidden:
		if header != nil && header.Get(HeaderRateRemaining) == "0" {
			return errors.Errorf("%s: %w", detail, ErrRateLimited)
		}
		return errors.Errorf("%s: %w", detail, ErrAuthFailure)
	default:
		return errors.Errorf("unexpected status %d: %s", code, detail)
	}
}

// CheckResponse returns nil for 2xx responses and a mapped error otherwise. The body
// is read (bounded) for the error message but not closed.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return StatusError(resp.StatusCode, resp.Header, string(body))
}
