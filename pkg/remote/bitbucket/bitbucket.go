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

// Package bitbucket reads repository contents through the Bitbucket Cloud 2.0 API.
package bitbucket

import (
	"context"
	"encoding/json"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/repofetch/pkg/credentials"
	"github.com/walteh/repofetch/pkg/remote"
	"github.com/walteh/repofetch/pkg/source"
	"gitlab.com/tozd/go/errors"
)

// Provider implements remote.Provider for bitbucket.org
type Provider struct {
	rest *remote.RESTClient
}

func init() {
	remote.RegisterProvider(source.Bitbucket, NewProvider)
}

// NewProvider authenticates with an app password when the credential has a username
// and with a bearer token otherwise.
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

type repository struct {
	MainBranch *struct {
		Name string `json:"name"`
	} `json:"mainbranch"`
}

type branch struct {
	Target struct {
		Hash string `json:"hash"`
	} `json:"target"`
}

type srcEntry struct {
	Path       string   `json:"path"`
	Type       string   `json:"type"`
	Size       int64    `json:"size"`
	Attributes []string `json:"attributes"`
	Commit     struct {
		Hash string `json:"hash"`
	} `json:"commit"`
}

type srcPage struct {
	Values  []srcEntry `json:"values"`
	Pagelen int        `json:"pagelen"`
	Next    string     `json:"next"`
}

func repoRef(repo string) string {
	return "repositories/" + remote.EscapePath(repo)
}

func srcRef(repo, commit, p string) string {
	ref := repoRef(repo) + "/src/" + url.PathEscape(commit) + "/"
	if p = strings.Trim(p, "/"); p != "" {
		ref += remote.EscapePath(p)
	}
	return ref
}

// DefaultBranch reports ErrEmptyRepository when the repository has no main branch yet.
func (p *Provider) DefaultBranch(ctx context.Context, repo string) (string, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "bitbucket").Str("repo", repo).Msg("resolving default branch")

	var r repository
	if err := p.rest.GetJSON(ctx, repoRef(repo), nil, &r); err != nil {
		return "", errors.Errorf("getting repository %s: %w", repo, err)
	}
	if r.MainBranch == nil || r.MainBranch.Name == "" {
		return "", errors.Errorf("%s: %w", repo, remote.ErrEmptyRepository)
	}
	return r.MainBranch.Name, nil
}

func (p *Provider) ResolveCommit(ctx context.Context, repo, branchName string) (string, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "bitbucket").Str("repo", repo).Str("branch", branchName).Msg("resolving commit")

	var b branch
	if err := p.rest.GetJSON(ctx, repoRef(repo)+"/refs/branches/"+url.PathEscape(branchName), nil, &b); err != nil {
		return "", errors.Errorf("getting branch %s of %s: %w", branchName, repo, err)
	}
	return b.Target.Hash, nil
}

// ListDirectory follows the "next" links until every page is read. The src endpoint
// answers with raw content for files, which is reported as ErrNotFound.
func (p *Provider) ListDirectory(ctx context.Context, repo, dir, commit string) ([]remote.DirectoryEntry, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "bitbucket").Str("repo", repo).Str("path", dir).Str("commit", commit).Msg("listing directory")

	ref := srcRef(repo, commit, dir)
	if dir != "" {
		ref += "/"
	}
	query := url.Values{"pagelen": {"100"}}

	var entries []remote.DirectoryEntry
	for ref != "" {
		body, err := p.rest.GetRaw(ctx, ref, query)
		if err != nil {
			return nil, errors.Errorf("listing %s in %s: %w", dir, repo, err)
		}

		page, ok := decodePage(body)
		if !ok {
			return nil, errors.Errorf("%s in %s is not a directory: %w", dir, repo, remote.ErrNotFound)
		}

		for _, v := range page.Values {
			entries = append(entries, remote.DirectoryEntry{
				Name: path.Base(v.Path),
				Path: v.Path,
				Kind: entryKind(v),
				Size: v.Size,
				SHA:  v.Commit.Hash,
			})
		}
		ref, query = page.Next, nil
	}
	return entries, nil
}

func decodePage(body []byte) (*srcPage, bool) {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	// listing pages always carry pagelen
	var header struct {
		Pagelen *int `json:"pagelen"`
	}
	if err := json.Unmarshal(body, &header); err != nil || header.Pagelen == nil {
		return nil, false
	}
	var page srcPage
	if err := json.Unmarshal(body, &page); err != nil || page.Values == nil {
		return nil, false
	}
	for _, v := range page.Values {
		if !strings.HasPrefix(v.Type, "commit_") {
			return nil, false
		}
	}
	return &page, true
}

func entryKind(v srcEntry) remote.EntryKind {
	for _, a := range v.Attributes {
		switch a {
		case "subrepository":
			return remote.KindSubmodule
		case "link":
			return remote.KindSymlink
		}
	}
	if v.Type == "commit_directory" {
		return remote.KindDir
	}
	return remote.KindFile
}

func (p *Provider) FileContent(ctx context.Context, repo, filePath, commit string) (*remote.File, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "bitbucket").Str("repo", repo).Str("path", filePath).Str("commit", commit).Msg("fetching file")

	body, err := p.rest.GetRaw(ctx, srcRef(repo, commit, filePath), nil)
	if err != nil {
		return nil, errors.Errorf("fetching %s from %s: %w", filePath, repo, err)
	}
	// directories come back as a listing page
	if _, ok := decodePage(body); ok {
		return nil, errors.Errorf("%s in %s: %w", filePath, repo, remote.ErrNotAFile)
	}
	return &remote.File{Content: body}, nil
}

func (p *Provider) Link(ctx context.Context, repo string, entry remote.DirectoryEntry, commit string) (*remote.Link, error) {
	return remote.LinkFromContent(ctx, p, repo, entry, commit)
}
