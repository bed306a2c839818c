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

// Package azure reads repository contents through the Azure DevOps Git API.
//
// Repository ids carry the organization and project:
//
//	org/project/_git/repo
//	org/_git/repo          (project named after the repository)
package azure

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"
	"github.com/rs/zerolog"
	"github.com/walteh/repofetch/pkg/credentials"
	"github.com/walteh/repofetch/pkg/remote"
	"github.com/walteh/repofetch/pkg/source"
	"gitlab.com/tozd/go/errors"
)

// AzureClient is the subset of git.Client we use
type AzureClient interface {
	GetRepository(ctx context.Context, args git.GetRepositoryArgs) (*git.GitRepository, error)
	GetBranch(ctx context.Context, args git.GetBranchArgs) (*git.GitBranchStats, error)
	GetItems(ctx context.Context, args git.GetItemsArgs) (*[]git.GitItem, error)
	GetItemContent(ctx context.Context, args git.GetItemContentArgs) (io.ReadCloser, error)
}

// Connector opens a client for one organization
type Connector func(ctx context.Context, organization string) (AzureClient, error)

// Provider implements remote.Provider for Azure Repos. Clients are opened lazily, one
// per organization.
type Provider struct {
	connect Connector

	mu      sync.Mutex
	clients map[string]AzureClient
}

func init() {
	remote.RegisterProvider(source.Azure, NewProvider)
}

func NewProvider(ctx context.Context, src source.Source, cred credentials.Credential) (remote.Provider, error) {
	endpoint := strings.TrimSuffix(src.APIEndpoint(), "/")
	pat := cred.Password()

	return New(func(ctx context.Context, organization string) (AzureClient, error) {
		conn := azuredevops.NewPatConnection(endpoint+"/"+organization, pat)
		return git.NewClient(ctx, conn)
	}), nil
}

func New(connect Connector) *Provider {
	return &Provider{connect: connect, clients: map[string]AzureClient{}}
}

type repoID struct {
	organization string
	project      string
	name         string
}

func parseRepo(repo string) (repoID, error) {
	src, err := source.New(source.Azure, repo)
	if err != nil {
		return repoID{}, err
	}
	project, err := src.Project()
	if err != nil {
		return repoID{}, err
	}
	return repoID{organization: src.Organization(), project: project, name: src.UnscopedRepo()}, nil
}

func (p *Provider) client(ctx context.Context, repo string) (AzureClient, repoID, error) {
	id, err := parseRepo(repo)
	if err != nil {
		return nil, repoID{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[id.organization]; ok {
		return c, id, nil
	}
	c, err := p.connect(ctx, id.organization)
	if err != nil {
		return nil, repoID{}, errors.Errorf("connecting to azure organization %s: %w", id.organization, mapError(err))
	}
	p.clients[id.organization] = c
	return c, id, nil
}

func commitVersion(commit string) *git.GitVersionDescriptor {
	return &git.GitVersionDescriptor{
		Version:     &commit,
		VersionType: &git.GitVersionTypeValues.Commit,
	}
}

func (p *Provider) DefaultBranch(ctx context.Context, repo string) (string, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "azure").Str("repo", repo).Msg("resolving default branch")

	c, id, err := p.client(ctx, repo)
	if err != nil {
		return "", err
	}

	r, err := c.GetRepository(ctx, git.GetRepositoryArgs{RepositoryId: &id.name, Project: &id.project})
	if err != nil {
		return "", errors.Errorf("getting repository %s: %w", repo, mapError(err))
	}
	if r.DefaultBranch == nil || *r.DefaultBranch == "" {
		return "", errors.Errorf("%s: %w", repo, remote.ErrEmptyRepository)
	}
	return strings.TrimPrefix(*r.DefaultBranch, "refs/heads/"), nil
}

func (p *Provider) ResolveCommit(ctx context.Context, repo, branch string) (string, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "azure").Str("repo", repo).Str("branch", branch).Msg("resolving commit")

	c, id, err := p.client(ctx, repo)
	if err != nil {
		return "", err
	}

	b, err := c.GetBranch(ctx, git.GetBranchArgs{RepositoryId: &id.name, Project: &id.project, Name: &branch})
	if err != nil {
		return "", errors.Errorf("getting branch %s of %s: %w", branch, repo, mapError(err))
	}
	if b.Commit == nil || b.Commit.CommitId == nil {
		return "", errors.Errorf("branch %s of %s has no commit: %w", branch, repo, remote.ErrNotFound)
	}
	return *b.Commit.CommitId, nil
}

func (p *Provider) ListDirectory(ctx context.Context, repo, dir, commit string) ([]remote.DirectoryEntry, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "azure").Str("repo", repo).Str("path", dir).Str("commit", commit).Msg("listing directory")

	c, id, err := p.client(ctx, repo)
	if err != nil {
		return nil, err
	}

	scope := "/" + strings.Trim(dir, "/")
	items, err := c.GetItems(ctx, git.GetItemsArgs{
		RepositoryId:      &id.name,
		Project:           &id.project,
		ScopePath:         &scope,
		RecursionLevel:    &git.VersionControlRecursionTypeValues.OneLevel,
		VersionDescriptor: commitVersion(commit),
	})
	if err != nil {
		return nil, errors.Errorf("listing %s in %s: %w", dir, repo, mapError(err))
	}
	if items == nil {
		return nil, errors.Errorf("%s in %s: %w", dir, repo, remote.ErrNotFound)
	}

	entries := []remote.DirectoryEntry{}
	sawSelf := false
	for _, item := range *items {
		itemPath := ""
		if item.Path != nil {
			itemPath = *item.Path
		}
		// the scope itself is part of the answer
		if itemPath == scope {
			sawSelf = true
			if item.IsFolder == nil || !*item.IsFolder {
				return nil, errors.Errorf("%s in %s is not a directory: %w", dir, repo, remote.ErrNotFound)
			}
			continue
		}

		rel := strings.TrimPrefix(itemPath, "/")
		name := rel[strings.LastIndex(rel, "/")+1:]
		sha := ""
		if item.ObjectId != nil {
			sha = *item.ObjectId
		}
		entries = append(entries, remote.DirectoryEntry{
			Name: name,
			Path: rel,
			Kind: itemKind(item),
			SHA:  sha,
		})
	}
	if !sawSelf && len(entries) == 0 {
		return nil, errors.Errorf("%s in %s: %w", dir, repo, remote.ErrNotFound)
	}
	return entries, nil
}

func itemKind(item git.GitItem) remote.EntryKind {
	if item.IsSymLink != nil && *item.IsSymLink {
		return remote.KindSymlink
	}
	if item.GitObjectType != nil {
		switch *item.GitObjectType {
		case git.GitObjectTypeValues.Tree:
			return remote.KindDir
		case git.GitObjectTypeValues.Commit:
			return remote.KindSubmodule
		}
	}
	if item.IsFolder != nil && *item.IsFolder {
		return remote.KindDir
	}
	return remote.KindFile
}

func (p *Provider) FileContent(ctx context.Context, repo, filePath, commit string) (*remote.File, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "azure").Str("repo", repo).Str("path", filePath).Str("commit", commit).Msg("fetching file")

	c, id, err := p.client(ctx, repo)
	if err != nil {
		return nil, err
	}

	itemPath := "/" + strings.Trim(filePath, "/")
	body, err := c.GetItemContent(ctx, git.GetItemContentArgs{
		RepositoryId:      &id.name,
		Project:           &id.project,
		Path:              &itemPath,
		VersionDescriptor: commitVersion(commit),
	})
	if err != nil {
		return nil, errors.Errorf("fetching %s from %s: %w", filePath, repo, mapError(err))
	}
	defer body.Close()

	content, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Errorf("reading %s from %s: %w", filePath, repo, err)
	}
	return &remote.File{Content: content}, nil
}

func (p *Provider) Link(ctx context.Context, repo string, entry remote.DirectoryEntry, commit string) (*remote.Link, error) {
	return remote.LinkFromContent(ctx, p, repo, entry, commit)
}

func mapError(err error) error {
	status := 0
	var wp *azuredevops.WrappedError
	var wv azuredevops.WrappedError
	switch {
	case errors.As(err, &wp) && wp.StatusCode != nil:
		status = *wp.StatusCode
	case errors.As(err, &wv) && wv.StatusCode != nil:
		status = *wv.StatusCode
	}
	if status != 0 {
		return remote.StatusError(status, nil, err.Error())
	}
	if strings.Contains(err.Error(), "could not be found") {
		return errors.Errorf("%s: %w", err.Error(), remote.ErrNotFound)
	}
	return err
}
