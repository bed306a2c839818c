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

// Package github reads repository contents through the GitHub REST API.
package github

import (
	"context"
	"net/http"
	"path"
	"strings"

	"github.com/google/go-github/v60/github"
	"github.com/rs/zerolog"
	"github.com/walteh/repofetch/pkg/credentials"
	"github.com/walteh/repofetch/pkg/remote"
	"github.com/walteh/repofetch/pkg/source"
	"gitlab.com/tozd/go/errors"
)

// maxSymlinkHops bounds how many symlinks FileContent follows for one path
const maxSymlinkHops = 8

// GitHubClient defines the GitHub API operations we need
type GitHubClient interface {
	Get(ctx context.Context, owner, repo string) (*github.Repository, *github.Response, error)
	GetRef(ctx context.Context, owner, repo, ref string) (*github.Reference, *github.Response, error)
	GetContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error)
	GetBlobRaw(ctx context.Context, owner, repo, sha string) ([]byte, *github.Response, error)
}

// Provider implements remote.Provider for GitHub and GitHub Enterprise
type Provider struct {
	client GitHubClient
}

func init() {
	remote.RegisterProvider(source.GitHub, NewProvider)
}

// NewProvider builds an authenticated client for the source's API endpoint.
func NewProvider(ctx context.Context, src source.Source, cred credentials.Credential) (remote.Provider, error) {
	client := github.NewClient(remote.NewHTTPClient(ctx, cred.Password()))

	if def, _ := source.DefaultAPIEndpoint(source.GitHub); src.APIEndpoint() != def {
		var err error
		client, err = client.WithEnterpriseURLs(src.APIEndpoint(), src.APIEndpoint())
		if err != nil {
			return nil, errors.Errorf("configuring enterprise endpoint %s: %w", src.APIEndpoint(), err)
		}
	}

	return New(&githubClientWrapper{client: client}), nil
}

// New wraps an existing client.
func New(client GitHubClient) *Provider {
	return &Provider{client: client}
}

// githubClientWrapper wraps the GitHub client to implement our interface
type githubClientWrapper struct {
	client *github.Client
}

func (w *githubClientWrapper) Get(ctx context.Context, owner, repo string) (*github.Repository, *github.Response, error) {
	return w.client.Repositories.Get(ctx, owner, repo)
}

func (w *githubClientWrapper) GetRef(ctx context.Context, owner, repo, ref string) (*github.Reference, *github.Response, error) {
	return w.client.Git.GetRef(ctx, owner, repo, ref)
}

func (w *githubClientWrapper) GetContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error) {
	return w.client.Repositories.GetContents(ctx, owner, repo, path, opts)
}

func (w *githubClientWrapper) GetBlobRaw(ctx context.Context, owner, repo, sha string) ([]byte, *github.Response, error) {
	return w.client.Git.GetBlobRaw(ctx, owner, repo, sha)
}

func splitRepo(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", errors.Errorf("invalid repository name: %s", repo)
	}
	return owner, name, nil
}

func (p *Provider) DefaultBranch(ctx context.Context, repo string) (string, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "github").Str("repo", repo).Msg("resolving default branch")

	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}

	r, _, err := p.client.Get(ctx, owner, name)
	if err != nil {
		return "", errors.Errorf("getting repository %s: %w", repo, mapError(err))
	}
	return r.GetDefaultBranch(), nil
}

func (p *Provider) ResolveCommit(ctx context.Context, repo, branch string) (string, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "github").Str("repo", repo).Str("branch", branch).Msg("resolving commit")

	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}

	ref, _, err := p.client.GetRef(ctx, owner, name, "heads/"+branch)
	if err != nil {
		if isEmptyRepository(err) {
			return "", errors.Errorf("%s: %w", repo, remote.ErrEmptyRepository)
		}
		return "", errors.Errorf("getting ref heads/%s of %s: %w", branch, repo, mapError(err))
	}
	return ref.GetObject().GetSHA(), nil
}

func (p *Provider) ListDirectory(ctx context.Context, repo, dir, commit string) ([]remote.DirectoryEntry, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "github").Str("repo", repo).Str("path", dir).Str("commit", commit).Msg("listing directory")

	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	file, listing, _, err := p.client.GetContents(ctx, owner, name, dir, &github.RepositoryContentGetOptions{Ref: commit})
	if err != nil {
		return nil, errors.Errorf("listing %s in %s: %w", dir, repo, mapError(err))
	}
	if file != nil {
		return nil, errors.Errorf("%s in %s is not a directory: %w", dir, repo, remote.ErrNotFound)
	}

	entries := make([]remote.DirectoryEntry, 0, len(listing))
	for _, c := range listing {
		entries = append(entries, remote.DirectoryEntry{
			Name: c.GetName(),
			Path: c.GetPath(),
			Kind: entryKind(c),
			Size: int64(c.GetSize()),
			SHA:  c.GetSHA(),
		})
	}
	return entries, nil
}

// submodules show up in listings as files without a download url
func entryKind(c *github.RepositoryContent) remote.EntryKind {
	switch c.GetType() {
	case "dir":
		return remote.KindDir
	case "symlink":
		return remote.KindSymlink
	case "submodule":
		return remote.KindSubmodule
	case "file":
		if c.DownloadURL == nil && c.GetSize() == 0 {
			return remote.KindSubmodule
		}
	}
	return remote.KindFile
}

// FileContent follows symlinks, reporting the final target, and falls back to the blob
// API for files too large for the contents API.
func (p *Provider) FileContent(ctx context.Context, repo, filePath, commit string) (*remote.File, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "github").Str("repo", repo).Str("path", filePath).Str("commit", commit).Msg("fetching file")

	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	current := filePath
	for hop := 0; hop <= maxSymlinkHops; hop++ {
		file, listing, _, err := p.client.GetContents(ctx, owner, name, current, &github.RepositoryContentGetOptions{Ref: commit})
		if err != nil {
			if isTooLarge(err) {
				return p.blobFallback(ctx, owner, name, current, commit, filePath)
			}
			return nil, errors.Errorf("fetching %s from %s: %w", current, repo, mapError(err))
		}
		if listing != nil || file == nil {
			return nil, errors.Errorf("%s in %s: %w", current, repo, remote.ErrNotAFile)
		}
		// gitlinks carry no content of their own
		if file.GetType() == "submodule" {
			return nil, errors.Errorf("%s in %s is a submodule: %w", current, repo, remote.ErrNotFound)
		}

		if file.GetType() == "symlink" {
			target, err := remote.ResolveSymlink(current, file.GetTarget())
			if err != nil {
				return nil, err
			}
			zerolog.Ctx(ctx).Debug().Str("link", current).Str("target", target).Msg("following symlink")
			current = target
			continue
		}

		// github resolves file symlinks itself and answers with the target's path
		if file.GetPath() != "" && file.GetPath() != current {
			current = file.GetPath()
		}

		if file.GetEncoding() == "none" {
			return p.blobFallback(ctx, owner, name, current, commit, filePath)
		}

		content, err := file.GetContent()
		if err != nil {
			return nil, errors.Errorf("decoding %s from %s: %w", current, repo, err)
		}
		return newFile([]byte(content), filePath, current), nil
	}

	return nil, errors.Errorf("too many symlinks resolving %s in %s: %w", filePath, repo, remote.ErrNotFound)
}

func newFile(content []byte, requested, resolved string) *remote.File {
	f := &remote.File{Content: content}
	if resolved != requested {
		f.SymlinkTarget = resolved
	}
	return f
}

// blobFallback finds the file's sha in its parent listing and downloads the raw blob.
func (p *Provider) blobFallback(ctx context.Context, owner, name, filePath, commit, requested string) (*remote.File, error) {
	zerolog.Ctx(ctx).Debug().Str("path", filePath).Msg("file too large for contents api, downloading blob")

	dir := path.Dir(filePath)
	if dir == "." {
		dir = ""
	}

	_, listing, _, err := p.client.GetContents(ctx, owner, name, dir, &github.RepositoryContentGetOptions{Ref: commit})
	if err != nil {
		return nil, errors.Errorf("listing %s for blob lookup: %w", dir, mapError(err))
	}

	base := path.Base(filePath)
	for _, c := range listing {
		if c.GetName() != base {
			continue
		}
		content, _, err := p.client.GetBlobRaw(ctx, owner, name, c.GetSHA())
		if err != nil {
			return nil, errors.Errorf("downloading blob %s for %s: %w", c.GetSHA(), filePath, mapError(err))
		}
		return newFile(content, requested, filePath), nil
	}

	return nil, errors.Errorf("%s missing from parent listing: %w", filePath, remote.ErrNotFound)
}

// Link asks the contents API about the entry itself, which describes submodules and
// symlinks instead of returning their content.
func (p *Provider) Link(ctx context.Context, repo string, entry remote.DirectoryEntry, commit string) (*remote.Link, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "github").Str("repo", repo).Str("path", entry.Path).Msg("resolving link")

	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	file, _, _, err := p.client.GetContents(ctx, owner, name, entry.Path, &github.RepositoryContentGetOptions{Ref: commit})
	if err != nil {
		return nil, errors.Errorf("describing %s in %s: %w", entry.Path, repo, mapError(err))
	}
	if file == nil {
		return nil, errors.Errorf("%s in %s is a directory: %w", entry.Path, repo, remote.ErrUnsupported)
	}

	switch entry.Kind {
	case remote.KindSubmodule:
		sha := file.GetSHA()
		if sha == "" {
			sha = entry.SHA
		}
		return &remote.Link{Kind: remote.KindSubmodule, URL: file.GetSubmoduleGitURL(), Commit: sha}, nil
	case remote.KindSymlink:
		if file.GetType() == "symlink" {
			target, err := remote.ResolveSymlink(entry.Path, file.GetTarget())
			if err != nil {
				return nil, err
			}
			return &remote.Link{Kind: remote.KindSymlink, Target: target}, nil
		}
		return &remote.Link{Kind: remote.KindSymlink, Target: file.GetPath()}, nil
	default:
		return nil, errors.Errorf("%s entry %s has no link: %w", entry.Kind, entry.Path, remote.ErrUnsupported)
	}
}

func mapError(err error) error {
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return errors.Errorf("%s: %w", rle.Message, remote.ErrRateLimited)
	}
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		return errors.Errorf("%s: %w", abuse.Message, remote.ErrRateLimited)
	}
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return remote.StatusError(er.Response.StatusCode, er.Response.Header, er.Message)
	}
	return err
}

func isEmptyRepository(err error) bool {
	var er *github.ErrorResponse
	if !errors.As(err, &er) || er.Response == nil {
		return false
	}
	return er.Response.StatusCode == http.StatusConflict && strings.Contains(er.Message, "Repository is empty")
}

func isTooLarge(err error) bool {
	var er *github.ErrorResponse
	if !errors.As(err, &er) || er.Response == nil || er.Response.StatusCode != http.StatusForbidden {
		return false
	}
	for _, e := range er.Errors {
		if e.Code == "too_large" {
			return true
		}
	}
	return strings.Contains(strings.ToLower(er.Message), "too large")
}
