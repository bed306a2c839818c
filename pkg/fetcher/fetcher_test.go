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
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/repofetch/pkg/remote"
	"github.com/walteh/repofetch/pkg/source"
	"gitlab.com/tozd/go/errors"
)

const (
	appSHA = "0123456789abcdef0123456789abcdef01234567"
	libSHA = "fedcba9876543210fedcba9876543210fedcba98"
)

func testContext(t *testing.T) context.Context {
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel).WithContext(context.Background())
}

func fixtureRepos() map[string]*fakeRepo {
	return map[string]*fakeRepo{
		"org/app": {
			defaultBranch: "main",
			heads:         map[string]string{"main": appSHA, "dev": "devsha"},
			nodes: map[string]fakeNode{
				"README.md":            {kind: remote.KindFile, content: "hello"},
				"pkg/main.go":          {kind: remote.KindFile, content: "package main"},
				"vendor/lib":           {kind: remote.KindSubmodule, target: "https://github.com/org/lib.git", sha: libSHA},
				"docs/current":         {kind: remote.KindSymlink, target: "../versions/v2"},
				"docs/latest.md":       {kind: remote.KindSymlink, target: "../versions/v2/guide.md"},
				"versions/v2/guide.md": {kind: remote.KindFile, content: "guide v2"},
			},
		},
		"org/lib": {
			defaultBranch: "main",
			heads:         map[string]string{"main": "unused"},
			nodes: map[string]fakeNode{
				"lib.go":        {kind: remote.KindFile, content: "package lib"},
				"deep/inner.go": {kind: remote.KindFile, content: "package deep"},
			},
		},
		"org/empty": {empty: true},
	}
}

func newTestSession(t *testing.T, fake *fakeProvider, repo string, opts ...source.Option) *Session {
	t.Helper()
	return newTestSessionWith(t, fake, repo, opts, nil)
}

func newTestSessionWith(t *testing.T, fake *fakeProvider, repo string, srcOpts []source.Option, opts []Option) *Session {
	t.Helper()
	src, err := source.New(source.GitHub, repo, srcOpts...)
	require.NoError(t, err, "building source should succeed")

	s, err := New(src, nil, append([]Option{WithProvider(source.GitHub, fake)}, opts...)...)
	require.NoError(t, err, "building session should succeed")
	return s
}

func TestCommit(t *testing.T) {
	ctx := testContext(t)

	t.Run("default_branch_is_resolved_once", func(t *testing.T) {
		fake := newFakeProvider(fixtureRepos())
		s := newTestSession(t, fake, "org/app")

		first, err := s.Commit(ctx)
		require.NoError(t, err)
		second, err := s.Commit(ctx)
		require.NoError(t, err)

		assert.Equal(t, appSHA, first)
		assert.Len(t, first, 40, "commit should be a full sha")
		assert.Equal(t, first, second)
		assert.Equal(t, 1, fake.count("default:"), "default branch should be resolved once")
		assert.Equal(t, 1, fake.count("resolve:"), "commit should be resolved once")
	})

	t.Run("explicit_commit_short_circuits", func(t *testing.T) {
		fake := newFakeProvider(fixtureRepos())
		s := newTestSession(t, fake, "org/app", source.WithCommit("pinned"))

		got, err := s.Commit(ctx)
		require.NoError(t, err)
		assert.Equal(t, "pinned", got)
		assert.Empty(t, fake.calls, "no remote calls expected")
	})

	t.Run("explicit_branch", func(t *testing.T) {
		fake := newFakeProvider(fixtureRepos())
		got, err := newTestSession(t, fake, "org/app", source.WithBranch("dev")).Commit(ctx)
		require.NoError(t, err)
		assert.Equal(t, "devsha", got)
		assert.Equal(t, 0, fake.count("default:"))
	})

	t.Run("missing_branch", func(t *testing.T) {
		_, err := newTestSession(t, newFakeProvider(fixtureRepos()), "org/app", source.WithBranch("nope")).Commit(ctx)
		var branchErr *BranchNotFoundError
		require.True(t, errors.As(err, &branchErr), "expected BranchNotFoundError, got %v", err)
		assert.Equal(t, "nope", branchErr.Branch)
		assert.True(t, errors.Is(err, remote.ErrNotFound))
	})

	t.Run("missing_repository", func(t *testing.T) {
		_, err := newTestSession(t, newFakeProvider(fixtureRepos()), "org/missing").Commit(ctx)
		var repoErr *RepoNotFoundError
		require.True(t, errors.As(err, &repoErr), "expected RepoNotFoundError, got %v", err)
		assert.Equal(t, "org/missing", repoErr.Source.Repo())
	})

	t.Run("empty_repository_has_no_commit", func(t *testing.T) {
		fake := newFakeProvider(fixtureRepos())
		s := newTestSession(t, fake, "org/empty")

		got, err := s.Commit(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)

		_, err = s.FetchFile(ctx, "README.md")
		var notFound *DependencyFileNotFoundError
		require.True(t, errors.As(err, &notFound), "expected DependencyFileNotFoundError, got %v", err)
		assert.Equal(t, "/README.md", notFound.Path)
		assert.Equal(t, 0, fake.count("file:"), "no file read should be attempted")
	})
}

func TestFetchFile(t *testing.T) {
	ctx := testContext(t)

	tests := []struct {
		name        string
		directory   string
		file        string
		follow      bool
		wantContent string
		wantPath    string
		wantKind    remote.EntryKind
		wantErr     error
	}{
		{name: "root_file", file: "README.md", wantContent: "hello", wantPath: "/README.md", wantKind: remote.KindFile},
		{name: "relative_to_directory", directory: "pkg", file: "main.go", wantContent: "package main", wantPath: "/pkg/main.go", wantKind: remote.KindFile},
		{name: "parent_of_directory", directory: "pkg", file: "../README.md", wantContent: "hello", wantPath: "/README.md", wantKind: remote.KindFile},
		{name: "directory_is_not_a_file", file: "pkg", wantErr: ErrNotAFile},
		{name: "missing_file", file: "nope.txt", wantErr: remote.ErrNotFound},
		{name: "missing_file_with_follow", file: "nope/deeper.txt", follow: true, wantErr: remote.ErrNotFound},
		{name: "submodule_without_follow", file: "vendor/lib/lib.go", wantErr: remote.ErrNotFound},
		{name: "submodule_with_follow", file: "vendor/lib/lib.go", follow: true, wantContent: "package lib", wantPath: "/vendor/lib/lib.go", wantKind: remote.KindFile},
		{name: "symlinked_directory_with_follow", file: "docs/current/guide.md", follow: true, wantContent: "guide v2", wantPath: "/docs/current/guide.md", wantKind: remote.KindFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, newFakeProvider(fixtureRepos()), "org/app", source.WithDirectory(tt.directory))

			var opts []CallOption
			if tt.follow {
				opts = append(opts, FollowIndirections())
			}

			got, err := s.FetchFile(ctx, tt.file, opts...)
			if tt.wantErr != nil {
				require.Error(t, err, "FetchFile should fail")
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}

			require.NoError(t, err, "FetchFile should succeed")
			assert.Equal(t, tt.wantContent, string(got.Content), "content should match")
			assert.Equal(t, tt.wantPath, got.Path, "path should match")
			assert.Equal(t, tt.wantKind, got.Kind, "kind should match")
		})
	}
}

func TestSubmoduleTransparency(t *testing.T) {
	ctx := testContext(t)
	fake := newFakeProvider(fixtureRepos())
	s := newTestSession(t, fake, "org/app")

	got, err := s.FetchFile(ctx, "vendor/lib/lib.go", FollowIndirections())
	require.NoError(t, err)
	assert.Equal(t, "package lib", string(got.Content))

	inds := s.Indirections()
	require.Len(t, inds, 1)
	assert.Equal(t, "vendor/lib", inds[0].ForPath)
	assert.Equal(t, remote.KindSubmodule, inds[0].Kind)
	assert.Equal(t, "org/lib", inds[0].Target.Repo())
	assert.Equal(t, libSHA, inds[0].Target.Commit(), "submodule should be pinned to the recorded commit")
	assert.Equal(t, 1, fake.count("link:"), "link should be resolved once")

	lists := fake.count("list:org/app:")
	got, err = s.FetchFile(ctx, "vendor/lib/deep/inner.go", FollowIndirections())
	require.NoError(t, err)
	assert.Equal(t, "package deep", string(got.Content))
	assert.Equal(t, lists, fake.count("list:org/app:"), "known submodule should not be walked again")
	assert.Equal(t, 1, fake.count("link:"))

	_, err = s.FetchFile(ctx, "vendor/lib/lib.go")
	require.Error(t, err, "submodule indirections need follow")
	assert.True(t, errors.Is(err, remote.ErrNotFound))

	entries, err := s.ListDirectory(ctx, "vendor/lib", FollowIndirections())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "vendor/lib/deep", entries[0].Path, "entries keep the outer path")
	assert.Equal(t, remote.KindDir, entries[0].Kind)
	assert.Equal(t, "vendor/lib/lib.go", entries[1].Path)
}

func TestSymlinkTransparency(t *testing.T) {
	ctx := testContext(t)

	t.Run("discovered_directory_symlink_applies_without_follow", func(t *testing.T) {
		fake := newFakeProvider(fixtureRepos())
		s := newTestSession(t, fake, "org/app")

		_, err := s.FetchFile(ctx, "docs/current/guide.md", FollowIndirections())
		require.NoError(t, err)

		got, err := s.FetchFile(ctx, "docs/current/guide.md")
		require.NoError(t, err, "symlink indirections apply to every read")
		assert.Equal(t, "guide v2", string(got.Content))

		ind, ok := s.linked.Get("docs/current")
		require.True(t, ok)
		assert.Equal(t, "versions/v2", ind.Path)
	})

	t.Run("provider_followed_file_symlink", func(t *testing.T) {
		fake := newFakeProvider(fixtureRepos())
		fake.followSymlinks = true
		s := newTestSession(t, fake, "org/app")

		got, err := s.FetchFile(ctx, "docs/latest.md")
		require.NoError(t, err)
		assert.Equal(t, "guide v2", string(got.Content))
		assert.Equal(t, remote.KindSymlink, got.Kind)
		assert.Equal(t, "versions/v2/guide.md", got.SymlinkTarget)

		reads := fake.count("file:")
		again, err := s.FetchFile(ctx, "docs/latest.md")
		require.NoError(t, err)
		assert.Equal(t, "guide v2", string(again.Content))
		assert.Equal(t, remote.KindSymlink, again.Kind)
		assert.Equal(t, "versions/v2/guide.md", again.SymlinkTarget)
		assert.Equal(t, 1, fake.calls["file:org/app:docs/latest.md"], "known symlinks are read through their target")
		assert.Equal(t, reads, fake.count("file:"), "the target should be served from the cache")
	})

	t.Run("listed_file_symlink_with_follow", func(t *testing.T) {
		fake := newFakeProvider(fixtureRepos())
		s := newTestSession(t, fake, "org/app")

		got, err := s.FetchFile(ctx, "docs/latest.md", FollowIndirections())
		require.NoError(t, err)
		assert.Equal(t, "guide v2", string(got.Content), "the link should be read through")
		assert.Equal(t, remote.KindSymlink, got.Kind)
		assert.Equal(t, "versions/v2/guide.md", got.SymlinkTarget)
		assert.Equal(t, 1, fake.calls["link:org/app:docs/latest.md"])

		reads := fake.count("file:")
		again, err := s.FetchFile(ctx, "docs/latest.md")
		require.NoError(t, err, "a recorded file symlink applies without follow")
		assert.Equal(t, "guide v2", string(again.Content))
		assert.Equal(t, remote.KindSymlink, again.Kind)
		assert.Equal(t, reads, fake.count("file:"))
		assert.Equal(t, 1, fake.count("link:"))
	})

	t.Run("listed_file_symlink_without_follow", func(t *testing.T) {
		fake := newFakeProvider(fixtureRepos())
		s := newTestSession(t, fake, "org/app")

		got, err := s.FetchFile(ctx, "docs/latest.md")
		require.NoError(t, err)
		assert.Equal(t, "../versions/v2/guide.md", string(got.Content), "without follow the link text is returned")
		assert.Equal(t, remote.KindFile, got.Kind)
		assert.Empty(t, got.SymlinkTarget)
		assert.Equal(t, 0, fake.count("list:"))
	})

	t.Run("symlink_inside_submodule_needs_follow", func(t *testing.T) {
		fake := newFakeProvider(fixtureRepos())
		s := newTestSession(t, fake, "org/app")

		_, err := s.FetchFile(ctx, "vendor/lib/lib.go", FollowIndirections())
		require.NoError(t, err)
		sub, ok := s.linked.Get("vendor/lib")
		require.True(t, ok)
		s.linked.Put(Indirection{ForPath: "vendor/lib/current", Kind: remote.KindSymlink, Target: sub.Target, Path: "deep"})

		_, err = s.FetchFile(ctx, "vendor/lib/current/inner.go")
		require.Error(t, err, "a symlink recorded inside a submodule must not lead a plain read into it")
		assert.True(t, errors.Is(err, remote.ErrNotFound), "got %v", err)
		assert.Equal(t, 0, fake.calls["file:org/lib:deep/inner.go"])

		got, err := s.FetchFile(ctx, "vendor/lib/current/inner.go", FollowIndirections())
		require.NoError(t, err)
		assert.Equal(t, "package deep", string(got.Content))
	})
}

func TestDirectoryAnsweredWithNotFound(t *testing.T) {
	ctx := testContext(t)

	tests := []struct {
		name   string
		file   string
		follow bool
	}{
		{name: "plain_directory", file: "pkg"},
		{name: "plain_directory_with_follow", file: "pkg", follow: true},
		{name: "nested_directory", file: "versions/v2"},
		{name: "submodule_root_with_follow", file: "vendor/lib", follow: true},
		{name: "directory_inside_submodule", file: "vendor/lib/deep", follow: true},
		{name: "repository_root", file: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeProvider(fixtureRepos())
			fake.dirsNotFound = true
			s := newTestSession(t, fake, "org/app")

			var opts []CallOption
			if tt.follow {
				opts = append(opts, FollowIndirections())
			}

			_, err := s.FetchFile(ctx, tt.file, opts...)
			require.Error(t, err, "FetchFile should fail")
			assert.True(t, errors.Is(err, ErrNotAFile), "got %v", err)

			var missing *DependencyFileNotFoundError
			assert.False(t, errors.As(err, &missing), "a directory is not a missing file")
		})
	}

	t.Run("missing_file_stays_missing", func(t *testing.T) {
		fake := newFakeProvider(fixtureRepos())
		fake.dirsNotFound = true
		s := newTestSession(t, fake, "org/app")

		_, err := s.FetchFile(ctx, "pkg/nope.go")
		var missing *DependencyFileNotFoundError
		require.True(t, errors.As(err, &missing), "expected DependencyFileNotFoundError, got %v", err)
		assert.Equal(t, 1, fake.calls["list:org/app:pkg"], "only the parent should be listed")
	})
}

func TestRetryIsBounded(t *testing.T) {
	ctx := testContext(t)
	fake := newFakeProvider(fixtureRepos())
	s := newTestSession(t, fake, "org/app")

	_, err := s.FetchFile(ctx, "vendor/lib/missing.go", FollowIndirections())
	var notFound *DependencyFileNotFoundError
	require.True(t, errors.As(err, &notFound), "expected DependencyFileNotFoundError, got %v", err)
	assert.Equal(t, "/vendor/lib/missing.go", notFound.Path)

	assert.Equal(t, 1, fake.calls["file:org/app:vendor/lib/missing.go"], "first attempt against the parent repo")
	assert.Equal(t, 1, fake.calls["file:org/lib:missing.go"], "exactly one retry against the submodule")
	assert.Equal(t, 1, fake.count("link:"))

	_, err = s.FetchFile(ctx, "vendor/lib/other.go", FollowIndirections())
	require.Error(t, err)
	assert.True(t, errors.As(err, &notFound))
	assert.Equal(t, 1, fake.count("link:"), "known indirections are not rediscovered")
}

func TestAncestorErrorPolicy(t *testing.T) {
	ctx := testContext(t)
	denied := errors.Errorf("listing pkg: %w", remote.ErrAuthFailure)

	t.Run("ignore", func(t *testing.T) {
		fake := newFakeProvider(fixtureRepos())
		fake.listErrors["org/app:pkg"] = denied
		s := newTestSession(t, fake, "org/app")

		_, err := s.FetchFile(ctx, "pkg/sub/x.go", FollowIndirections())
		var notFound *DependencyFileNotFoundError
		require.True(t, errors.As(err, &notFound), "expected DependencyFileNotFoundError, got %v", err)
		assert.Equal(t, 1, fake.calls["list:org/app:"], "walk should continue to the root")
	})

	t.Run("abort", func(t *testing.T) {
		fake := newFakeProvider(fixtureRepos())
		fake.listErrors["org/app:pkg"] = denied
		s := newTestSessionWith(t, fake, "org/app", nil, []Option{WithAncestorErrors(AncestorErrorsAbort)})

		_, err := s.FetchFile(ctx, "pkg/sub/x.go", FollowIndirections())
		require.Error(t, err)
		assert.True(t, errors.Is(err, remote.ErrAuthFailure), "got %v", err)
		assert.Equal(t, 0, fake.calls["list:org/app:"], "walk should stop at the failing ancestor")
	})

	t.Run("unknown_policy", func(t *testing.T) {
		src, err := source.New(source.GitHub, "org/app")
		require.NoError(t, err)
		_, err = New(src, nil, WithAncestorErrors("sometimes"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown ancestor error policy")
	})
}

func TestMissingRepositoryDuringWalk(t *testing.T) {
	ctx := testContext(t)
	fake := newFakeProvider(fixtureRepos())
	s := newTestSession(t, fake, "org/ghost", source.WithCommit(appSHA))

	_, err := s.FetchFile(ctx, "a/b.txt", FollowIndirections())
	var repoErr *RepoNotFoundError
	require.True(t, errors.As(err, &repoErr), "expected RepoNotFoundError, got %v", err)
}

func TestListDirectory(t *testing.T) {
	ctx := testContext(t)
	fake := newFakeProvider(fixtureRepos())
	s := newTestSession(t, fake, "org/app")

	entries, err := s.ListDirectory(ctx, "")
	require.NoError(t, err)

	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"README.md", "docs", "pkg", "vendor", "versions"}, names)

	_, err = s.ListDirectory(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.calls["list:org/app:"], "listings should be memoized")

	_, err = s.ListDirectory(ctx, "nope")
	var notFound *DependencyFileNotFoundError
	require.True(t, errors.As(err, &notFound), "expected DependencyFileNotFoundError, got %v", err)
	assert.Equal(t, "/nope", notFound.Path)
}

func TestFetchGlob(t *testing.T) {
	ctx := testContext(t)

	tests := []struct {
		name      string
		pattern   string
		follow    bool
		wantPaths []string
	}{
		{name: "go_files", pattern: "**/*.go", wantPaths: []string{"/pkg/main.go"}},
		{name: "go_files_across_submodules", pattern: "**/*.go", follow: true, wantPaths: []string{"/pkg/main.go", "/vendor/lib/deep/inner.go", "/vendor/lib/lib.go"}},
		{name: "static_prefix", pattern: "versions/*/guide.md", wantPaths: []string{"/versions/v2/guide.md"}},
		{name: "no_match", pattern: "**/*.rs", wantPaths: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, newFakeProvider(fixtureRepos()), "org/app")

			var opts []CallOption
			if tt.follow {
				opts = append(opts, FollowIndirections())
			}

			files, err := s.FetchGlob(ctx, tt.pattern, opts...)
			require.NoError(t, err)

			var paths []string
			for _, f := range files {
				paths = append(paths, f.Path)
			}
			assert.Equal(t, tt.wantPaths, paths)
		})
	}

	t.Run("invalid_pattern", func(t *testing.T) {
		s := newTestSession(t, newFakeProvider(fixtureRepos()), "org/app")
		_, err := s.FetchGlob(ctx, "[unclosed")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid glob pattern")
	})
}
