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

// Package gitlab reads repository contents through the GitLab REST API (v4).
package gitlab

import (
	"context"
	"path"

	"github.com/rs/zerolog"
	"github.com/walteh/repofetch/pkg/credentials"
	"github.com/walteh/repofetch/pkg/remote"
	"github.com/walteh/repofetch/pkg/source"
	gitlab "gitlab.com/gitlab-org/api/client-go"
	"gitlab.com/tozd/go/errors"
)

const symlinkMode = "120000"

// GitLabClient defines the GitLab API operations we need. ListTree returns every page.
type GitLabClient interface {
	GetProject(ctx context.Context, project string) (*gitlab.Project, error)
	GetBranch(ctx context.Context, project, branch string) (*gitlab.Branch, error)
	ListTree(ctx context.Context, project, dir, ref string) ([]*gitlab.TreeNode, error)
	GetRawFile(ctx context.Context, project, file, ref string) ([]byte, error)
}

// Provider implements remote.Provider for gitlab.com and self-managed instances
type Provider struct {
	client GitLabClient
}

func init() {
	remote.RegisterProvider(source.GitLab, NewProvider)
}

func NewProvider(ctx context.Context, src source.Source, cred credentials.Credential) (remote.Provider, error) {
	client, err := gitlab.NewClient(cred.Password(),
		gitlab.WithBaseURL(src.APIEndpoint()),
		gitlab.WithHTTPClient(remote.NewHTTPClient(ctx, "")),
	)
	if err != nil {
		return nil, errors.Errorf("creating gitlab client for %s: %w", src.APIEndpoint(), err)
	}
	return New(&gitlabClientWrapper{client: client}), nil
}

func New(client GitLabClient) *Provider {
	return &Provider{client: client}
}

type gitlabClientWrapper struct {
	client *gitlab.Client
}

func (w *gitlabClientWrapper) GetProject(ctx context.Context, project string) (*gitlab.Project, error) {
	p, _, err := w.client.Projects.GetProject(project, nil, gitlab.WithContext(ctx))
	return p, err
}

func (w *gitlabClientWrapper) GetBranch(ctx context.Context, project, branch string) (*gitlab.Branch, error) {
	b, _, err := w.client.Branches.GetBranch(project, branch, gitlab.WithContext(ctx))
	return b, err
}

func (w *gitlabClientWrapper) ListTree(ctx context.Context, project, dir, ref string) ([]*gitlab.TreeNode, error) {
	opt := &gitlab.ListTreeOptions{
		ListOptions: gitlab.ListOptions{PerPage: 100},
		Ref:         gitlab.Ptr(ref),
	}
	if dir != "" {
		opt.Path = gitlab.Ptr(dir)
	}

	var all []*gitlab.TreeNode
	for {
		nodes, resp, err := w.client.Repositories.ListTree(project, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		all = append(all, nodes...)
		if resp == nil || resp.NextPage == 0 {
			return all, nil
		}
		opt.Page = resp.NextPage
	}
}

func (w *gitlabClientWrapper) GetRawFile(ctx context.Context, project, file, ref string) ([]byte, error) {
	b, _, err := w.client.RepositoryFiles.GetRawFile(project, file, &gitlab.GetRawFileOptions{Ref: gitlab.Ptr(ref)}, gitlab.WithContext(ctx))
	return b, err
}

// DefaultBranch reports ErrEmptyRepository for projects without any branch.
func (p *Provider) DefaultBranch(ctx context.Context, repo string) (string, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "gitlab").Str("repo", repo).Msg("resolving default branch")

	project, err := p.client.GetProject(ctx, repo)
	if err != nil {
		return "", errors.Errorf("getting project %s: %w", repo, mapError(err))
	}
	if project.DefaultBranch == "" {
		return "", errors.Errorf("%s: %w", repo, remote.ErrEmptyRepository)
	}
	return project.DefaultBranch, nil
}

func (p *Provider) ResolveCommit(ctx context.Context, repo, branch string) (string, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "gitlab").Str("repo", repo).Str("branch", branch).Msg("resolving commit")

	b, err := p.client.GetBranch(ctx, repo, branch)
	if err != nil {
		return "", errors.Errorf("getting branch %s of %s: %w", branch, repo, mapError(err))
	}
	if b.Commit == nil || b.Commit.ID == "" {
		return "", errors.Errorf("branch %s of %s has no commit: %w", branch, repo, remote.ErrEmptyRepository)
	}
	return b.Commit.ID, nil
}

func (p *Provider) ListDirectory(ctx context.Context, repo, dir, commit string) ([]remote.DirectoryEntry, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "gitlab").Str("repo", repo).Str("path", dir).Str("commit", commit).Msg("listing directory")

	nodes, err := p.client.ListTree(ctx, repo, dir, commit)
	if err != nil {
		return nil, errors.Errorf("listing %s in %s: %w", dir, repo, mapError(err))
	}
	// the tree api answers an empty list for paths that are files
	if len(nodes) == 0 && dir != "" {
		return nil, errors.Errorf("%s in %s has no entries: %w", dir, repo, remote.ErrNotFound)
	}

	entries := make([]remote.DirectoryEntry, 0, len(nodes))
	for _, n := range nodes {
		entryPath := n.Path
		if entryPath == "" {
			entryPath = path.Join(dir, n.Name)
		}
		entries = append(entries, remote.DirectoryEntry{
			Name: n.Name,
			Path: entryPath,
			Kind: nodeKind(n),
			SHA:  n.ID,
		})
	}
	return entries, nil
}

func nodeKind(n *gitlab.TreeNode) remote.EntryKind {
	switch {
	case n.Type == "tree":
		return remote.KindDir
	case n.Type == "commit":
		return remote.KindSubmodule
	case n.Mode == symlinkMode:
		return remote.KindSymlink
	default:
		return remote.KindFile
	}
}

func (p *Provider) FileContent(ctx context.Context, repo, filePath, commit string) (*remote.File, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "gitlab").Str("repo", repo).Str("path", filePath).Str("commit", commit).Msg("fetching file")

	content, err := p.client.GetRawFile(ctx, repo, filePath, commit)
	if err != nil {
		return nil, errors.Errorf("fetching %s from %s: %w", filePath, repo, mapError(err))
	}
	return &remote.File{Content: content}, nil
}

func (p *Provider) Link(ctx context.Context, repo string, entry remote.DirectoryEntry, commit string) (*remote.Link, error) {
	return remote.LinkFromContent(ctx, p, repo, entry, commit)
}

func mapError(err error) error {
	var er *gitlab.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return remote.StatusError(er.Response.StatusCode, er.Response.Header, er.Message)
	}
	return err
}
