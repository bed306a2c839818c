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

package fetcher

import (
	"github.com/walteh/repofetch/pkg/remote"
	"github.com/walteh/repofetch/pkg/source"
	"gitlab.com/tozd/go/errors"
)

// AncestorErrorPolicy decides what the discovery walk does when listing an ancestor
// fails with something other than not found.
type AncestorErrorPolicy string

const (
	// AncestorErrorsIgnore logs the failure and keeps walking upwards
	AncestorErrorsIgnore AncestorErrorPolicy = "ignore"
	// AncestorErrorsAbort returns the failure to the caller
	AncestorErrorsAbort AncestorErrorPolicy = "abort"

	DefaultListingCacheSize = 512
	DefaultFileCacheSize    = 256

	// maxRewriteHops bounds chained symlink rewrites inside one repository
	maxRewriteHops = 16
)

// ParseAncestorErrorPolicy accepts "" as the default policy.
func ParseAncestorErrorPolicy(s string) (AncestorErrorPolicy, error) {
	switch AncestorErrorPolicy(s) {
	case "", AncestorErrorsIgnore:
		return AncestorErrorsIgnore, nil
	case AncestorErrorsAbort:
		return AncestorErrorsAbort, nil
	default:
		return "", errors.Errorf("unknown ancestor error policy %q (want ignore or abort)", s)
	}
}

type options struct {
	listingCacheSize int
	fileCacheSize    int
	ancestorErrors   AncestorErrorPolicy
	providers        map[source.Provider]remote.Provider
}

// 🔧 Option configures a Session
type Option func(*options)

func WithListingCacheSize(n int) Option {
	return func(o *options) { o.listingCacheSize = n }
}

func WithFileCacheSize(n int) Option {
	return func(o *options) { o.fileCacheSize = n }
}

func WithAncestorErrors(policy AncestorErrorPolicy) Option {
	return func(o *options) { o.ancestorErrors = policy }
}

// WithProvider uses client for every source of the given provider instead of the
// registered one.
func WithProvider(provider source.Provider, client remote.Provider) Option {
	return func(o *options) { o.providers[provider] = client }
}

type callOptions struct {
	follow bool
}

// CallOption configures a single read
type CallOption func(*callOptions)

// FollowIndirections lets reads cross submodules, and lets a miss trigger the
// discovery walk.
func FollowIndirections() CallOption {
	return func(o *callOptions) { o.follow = true }
}

func applyCallOptions(opts []CallOption) callOptions {
	var co callOptions
	for _, opt := range opts {
		opt(&co)
	}
	return co
}
