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

package opts

import (
	"io"

	"github.com/walteh/repofetch/pkg/config"
	"github.com/walteh/repofetch/pkg/fetcher"
	"github.com/walteh/repofetch/pkg/source"
	"gitlab.com/tozd/go/errors"
)

// RootOpts is filled by the root command before any subcommand runs.
type RootOpts struct {
	Config *config.Config
	Stdout io.Writer
	Debug  bool
	Follow bool

	// SessionOptions are appended after the options derived from Config
	SessionOptions []fetcher.Option
}

// Source builds the source selected by the config file and flags.
func (o *RootOpts) Source() (source.Source, error) {
	if err := o.Config.Validate(); err != nil {
		return source.Source{}, errors.Errorf("no usable source: %w", err)
	}
	return o.Config.Source.Build()
}

// NewSession opens a resolver session for src with the configured credentials.
func (o *RootOpts) NewSession(src source.Source) (*fetcher.Session, error) {
	opts := append(o.Config.FetchOptions(), o.SessionOptions...)
	return fetcher.New(src, o.Config.CredentialList(), opts...)
}

// Session opens a session for the configured source.
func (o *RootOpts) Session() (*fetcher.Session, error) {
	src, err := o.Source()
	if err != nil {
		return nil, err
	}
	return o.NewSession(src)
}

func (o *RootOpts) CallOptions() []fetcher.CallOption {
	if o.Follow || o.Config.FollowIndirections() {
		return []fetcher.CallOption{fetcher.FollowIndirections()}
	}
	return nil
}
