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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/repofetch/pkg/remote"
	"github.com/walteh/repofetch/pkg/source"
	"gitlab.com/tozd/go/errors"
)

func TestLinkedPathsMatch(t *testing.T) {
	app, err := source.New(source.GitHub, "org/app", source.WithCommit(appSHA))
	require.NoError(t, err)
	lib, err := source.New(source.GitHub, "org/lib", source.WithCommit(libSHA))
	require.NoError(t, err)

	linked := NewLinkedPaths()
	linked.Put(Indirection{ForPath: "vendor", Kind: remote.KindSymlink, Target: app, Path: "third_party"})
	linked.Put(Indirection{ForPath: "vendor/lib", Kind: remote.KindSubmodule, Target: lib})
	linked.Put(Indirection{ForPath: "vendor/lib/current", Kind: remote.KindSymlink, Target: lib, Path: "deep"})

	tests := []struct {
		name       string
		path       string
		submodules bool
		wantFor    string
		wantPath   string
		wantOK     bool
	}{
		{name: "longest_prefix_wins", path: "vendor/lib/a.go", submodules: true, wantFor: "vendor/lib", wantPath: "a.go", wantOK: true},
		{name: "submodules_skipped", path: "vendor/lib/a.go", wantFor: "vendor", wantPath: "third_party/lib/a.go", wantOK: true},
		{name: "exact_key", path: "vendor", wantFor: "vendor", wantPath: "third_party", wantOK: true},
		{name: "exact_submodule_key", path: "vendor/lib", submodules: true, wantFor: "vendor/lib", wantPath: "", wantOK: true},
		{name: "symlink_inside_submodule", path: "vendor/lib/current/a.go", submodules: true, wantFor: "vendor/lib/current", wantPath: "deep/a.go", wantOK: true},
		{name: "symlink_inside_submodule_skipped", path: "vendor/lib/current/a.go", wantFor: "vendor", wantPath: "third_party/lib/current/a.go", wantOK: true},
		{name: "sibling_prefix_is_not_a_match", path: "vendored/a.go", submodules: true},
		{name: "unrelated", path: "pkg/a.go", submodules: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ind, ok := linked.Match(tt.path, app, tt.submodules)
			require.Equal(t, tt.wantOK, ok, "match result should be correct")
			if !ok {
				return
			}
			assert.Equal(t, tt.wantFor, ind.ForPath)
			assert.Equal(t, tt.wantPath, ind.Rewrite(tt.path))
		})
	}

	all := linked.All()
	require.Len(t, all, 3)
	assert.Equal(t, "vendor", all[0].ForPath)
	assert.Equal(t, "vendor/lib", all[1].ForPath)
	assert.Equal(t, "vendor/lib/current", all[2].ForPath)
}

func TestSubmoduleSource(t *testing.T) {
	owner, err := source.New(source.GitHub, "org/app", source.WithCommit(appSHA), source.WithDirectory("sub"))
	require.NoError(t, err)

	tests := []struct {
		name         string
		raw          string
		wantProvider source.Provider
		wantRepo     string
		wantErr      bool
	}{
		{name: "https_same_host", raw: "https://github.com/org/lib.git", wantProvider: source.GitHub, wantRepo: "org/lib"},
		{name: "ssh_same_host", raw: "git@github.com:org/lib.git", wantProvider: source.GitHub, wantRepo: "org/lib"},
		{name: "relative_sibling", raw: "../lib.git", wantProvider: source.GitHub, wantRepo: "org/lib"},
		{name: "relative_nested", raw: "./tools", wantProvider: source.GitHub, wantRepo: "org/app/tools"},
		{name: "other_provider", raw: "https://gitlab.com/group/lib", wantProvider: source.GitLab, wantRepo: "group/lib"},
		{name: "unknown_host", raw: "https://git.example.com/org/lib.git", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := submoduleSource(owner, tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, remote.ErrUnsupported), "got %v", err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, got.Provider())
			assert.Equal(t, tt.wantRepo, got.Repo())
			assert.Empty(t, got.Commit(), "target commit is pinned by the caller")
		})
	}
}
