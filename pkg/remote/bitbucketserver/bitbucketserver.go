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

// Package bitbucketserver reads repository contents through the Bitbucket Server
// (Data Center) REST 1.0 API. Repository ids are PROJECT/slug.
package bitbucketserver

import (
	"context"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/repofetch/pkg/credentials"
	"github.com/walteh/repofetch/pkg/remote"
	"github.com/walteh/repofetch/pkg/source"
	"gitlab.com/tozd/go/errors"
)

// Provider implements remote.Provider for self-hosted Bitbucket
type Provider struct {
	rest *remote.RESTClient
}

func init() {
	remote.RegisterProvider(source.BitbucketServer, NewProvider)
}

func NewProvider(ctx context.Context, src source.Source, cred credentials.Credential) (remote.Provider, error) {
	rest, err := remote.NewRESTClient(src.APIEndpoint(), remote.NewHTTPClient(ctx, cred.Token()))
	if err != nil {
		return nil, err
	}
	if cred.Username() != "" {
		rest = rest.WithBasicAuth(cred.Username(), cred.Password())
	}
	return New(rest), nil
}

func New(rest *remote.RESTClient) *Provider {
	return &Provider{rest: rest}
}

type ref struct {
	ID           string `json:"id"`
	DisplayID    string `json:"displayId"`
	LatestCommit string `json:"latestCommit"`
}

type refPage struct {
	Values        []ref `json:"values"`
	IsLastPage    bool  `json:"isLastPage"`
	NextPageStart int   `json:"nextPageStart"`
}

type child struct {
	Path struct {
		ToString string `json:"toString"`
		Name     string `json:"name"`
	} `json:"path"`
	Type      string `json:"type"`
	Size      int64  `json:"size"`
	ContentID string `json:"contentId"`
}

type browsePage struct {
	Children *struct {
		Values        []child `json:"values"`
		IsLastPage    bool    `json:"isLastPage"`
		NextPageStart int     `json:"nextPageStart"`
	} `json:"children"`
}

func repoRef(repo string) (string, error) {
	project, slug, ok := strings.Cut(repo, "/")
	if !ok || project == "" || slug == "" || strings.Contains(slug, "/") {
		return "", errors.Errorf("invalid repository name: %s (want PROJECT/slug)", repo)
	}
	return "projects/" + url.PathEscape(project) + "/repos/" + url.PathEscape(slug) + "/", nil
}

// DefaultBranch reports ErrEmptyRepository when the server has no default branch.
func (p *Provider) DefaultBranch(ctx context.Context, repo string) (string, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "bitbucket_server").Str("repo", repo).Msg("resolving default branch")

	base, err := repoRef(repo)
	if err != nil {
		return "", err
	}

	var r ref
	if err := p.rest.GetJSON(ctx, base+"branches/default", nil, &r); err != nil {
		return "", errors.Errorf("getting default branch of %s: %w", repo, err)
	}
	if r.DisplayID == "" {
		return "", errors.Errorf("%s: %w", repo, remote.ErrEmptyRepository)
	}
	return r.DisplayID, nil
}

func (p *Provider) ResolveCommit(ctx context.Context, repo, branch string) (string, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "bitbucket_server").Str("repo", repo).Str("branch", branch).Msg("resolving commit")

	base, err := repoRef(repo)
	if err != nil {
		return "", err
	}

	start := 0
	for {
		var page refPage
		query := url.Values{"filterText": {branch}, "start": {strconv.Itoa(start)}}
		if err := p.rest.GetJSON(ctx, base+"branches", query, &page); err != nil {
			return "", errors.Errorf("listing branches of %s: %w", repo, err)
		}
		for _, b := range page.Values {
			if b.DisplayID == branch || b.ID == "refs/heads/"+branch {
				return b.LatestCommit, nil
			}
		}
		if page.IsLastPage || len(page.Values) == 0 {
			break
		}
		start = page.NextPageStart
	}
	return "", errors.Errorf("branch %s of %s: %w", branch, repo, remote.ErrNotFound)
}

func (p *Provider) ListDirectory(ctx context.Context, repo, dir, commit string) ([]remote.DirectoryEntry, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "bitbucket_server").Str("repo", repo).Str("path", dir).Str("commit", commit).Msg("listing directory")

	base, err := repoRef(repo)
	if err != nil {
		return nil, err
	}

	var entries []remote.DirectoryEntry
	start := 0
	for {
		var page browsePage
		query := url.Values{"at": {commit}, "start": {strconv.Itoa(start)}, "limit": {"1000"}}
		if err := p.rest.GetJSON(ctx, base+"browse/"+remote.EscapePath(dir), query, &page); err != nil {
			return nil, errors.Errorf("listing %s in %s: %w", dir, repo, err)
		}
		// browsing a file answers with its lines instead of children
		if page.Children == nil {
			return nil, errors.Errorf("%s in %s is not a directory: %w", dir, repo, remote.ErrNotFound)
		}

		for _, c := range page.Children.Values {
			rel := c.Path.ToString
			if rel == "" {
				rel = c.Path.Name
			}
			entries = append(entries, remote.DirectoryEntry{
				Name: path.Base(rel),
				Path: strings.TrimPrefix(path.Join(dir, rel), "/"),
				Kind: childKind(c.Type),
				Size: c.Size,
				SHA:  c.ContentID,
			})
		}

		if page.Children.IsLastPage || len(page.Children.Values) == 0 {
			return entries, nil
		}
		start = page.Children.NextPageStart
	}
}

func childKind(t string) remote.EntryKind {
	switch t {
	case "DIRECTORY":
		return remote.KindDir
	case "SUBMODULE":
		return remote.KindSubmodule
	default:
		return remote.KindFile
	}
}

func (p *Provider) FileContent(ctx context.Context, repo, filePath, commit string) (*remote.File, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "bitbucket_server").Str("repo", repo).Str("path", filePath).Str("commit", commit).Msg("fetching file")

	base, err := repoRef(repo)
	if err != nil {
		return nil, err
	}

	body, err := p.rest.GetRaw(ctx, base+"raw/"+remote.EscapePath(filePath), url.Values{"at": {commit}})
	if err != nil {
		return nil, errors.Errorf("fetching %s from %s: %w", filePath, repo, err)
	}
	return &remote.File{Content: body}, nil
}

func (p *Provider) Link(ctx context.Context, repo string, entry remote.DirectoryEntry, commit string) (*remote.Link, error) {
	return remote.LinkFromContent(ctx, p, repo, entry, commit)
}
