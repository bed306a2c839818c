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

// Package codecommit reads repository contents from AWS CodeCommit. The source
// hostname is the AWS region.
package codecommit

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/codecommit"
	"github.com/aws/aws-sdk-go-v2/service/codecommit/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/walteh/repofetch/pkg/credentials"
	"github.com/walteh/repofetch/pkg/remote"
	"github.com/walteh/repofetch/pkg/source"
	"gitlab.com/tozd/go/errors"
)

// CodeCommitClient is the subset of codecommit.Client we use
type CodeCommitClient interface {
	GetRepository(ctx context.Context, params *codecommit.GetRepositoryInput, optFns ...func(*codecommit.Options)) (*codecommit.GetRepositoryOutput, error)
	GetBranch(ctx context.Context, params *codecommit.GetBranchInput, optFns ...func(*codecommit.Options)) (*codecommit.GetBranchOutput, error)
	GetFolder(ctx context.Context, params *codecommit.GetFolderInput, optFns ...func(*codecommit.Options)) (*codecommit.GetFolderOutput, error)
	GetFile(ctx context.Context, params *codecommit.GetFileInput, optFns ...func(*codecommit.Options)) (*codecommit.GetFileOutput, error)
}

// Provider implements remote.Provider for CodeCommit
type Provider struct {
	client CodeCommitClient
}

func init() {
	remote.RegisterProvider(source.CodeCommit, NewProvider)
}

// NewProvider uses the credential's username and password as an access key pair and
// falls back to the default AWS credential chain.
func NewProvider(ctx context.Context, src source.Source, cred credentials.Credential) (remote.Provider, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(src.Hostname())}
	if cred.Username() != "" && cred.Password() != "" {
		opts = append(opts, config.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(cred.Username(), cred.Password(), ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Errorf("loading aws config for %s: %w", src.Hostname(), err)
	}
	return New(codecommit.NewFromConfig(cfg)), nil
}

func New(client CodeCommitClient) *Provider {
	return &Provider{client: client}
}

func (p *Provider) DefaultBranch(ctx context.Context, repo string) (string, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "codecommit").Str("repo", repo).Msg("resolving default branch")

	out, err := p.client.GetRepository(ctx, &codecommit.GetRepositoryInput{RepositoryName: aws.String(repo)})
	if err != nil {
		return "", errors.Errorf("getting repository %s: %w", repo, mapError(err))
	}
	if out.RepositoryMetadata == nil || aws.ToString(out.RepositoryMetadata.DefaultBranch) == "" {
		return "", errors.Errorf("%s: %w", repo, remote.ErrEmptyRepository)
	}
	return aws.ToString(out.RepositoryMetadata.DefaultBranch), nil
}

func (p *Provider) ResolveCommit(ctx context.Context, repo, branch string) (string, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "codecommit").Str("repo", repo).Str("branch", branch).Msg("resolving commit")

	out, err := p.client.GetBranch(ctx, &codecommit.GetBranchInput{RepositoryName: aws.String(repo), BranchName: aws.String(branch)})
	if err != nil {
		return "", errors.Errorf("getting branch %s of %s: %w", branch, repo, mapError(err))
	}
	if out.Branch == nil || out.Branch.CommitId == nil {
		return "", errors.Errorf("branch %s of %s: %w", branch, repo, remote.ErrNotFound)
	}
	return aws.ToString(out.Branch.CommitId), nil
}

// ListDirectory reports no sizes; GetFolder does not return them.
func (p *Provider) ListDirectory(ctx context.Context, repo, dir, commit string) ([]remote.DirectoryEntry, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "codecommit").Str("repo", repo).Str("path", dir).Str("commit", commit).Msg("listing directory")

	out, err := p.client.GetFolder(ctx, &codecommit.GetFolderInput{
		RepositoryName:  aws.String(repo),
		FolderPath:      aws.String("/" + dir),
		CommitSpecifier: aws.String(commit),
	})
	if err != nil {
		return nil, errors.Errorf("listing %s in %s: %w", dir, repo, mapError(err))
	}

	entries := make([]remote.DirectoryEntry, 0, len(out.Files)+len(out.SubFolders)+len(out.SubModules)+len(out.SymbolicLinks))
	for _, f := range out.Files {
		entries = append(entries, newEntry(f.RelativePath, f.AbsolutePath, remote.KindFile, f.BlobId))
	}
	for _, f := range out.SubFolders {
		entries = append(entries, newEntry(f.RelativePath, f.AbsolutePath, remote.KindDir, f.TreeId))
	}
	for _, m := range out.SubModules {
		entries = append(entries, newEntry(m.RelativePath, m.AbsolutePath, remote.KindSubmodule, m.CommitId))
	}
	for _, l := range out.SymbolicLinks {
		entries = append(entries, newEntry(l.RelativePath, l.AbsolutePath, remote.KindSymlink, l.BlobId))
	}
	return entries, nil
}

func newEntry(name, abs *string, kind remote.EntryKind, sha *string) remote.DirectoryEntry {
	return remote.DirectoryEntry{
		Name: aws.ToString(name),
		Path: strings.TrimLeft(aws.ToString(abs), "/"),
		Kind: kind,
		SHA:  aws.ToString(sha),
	}
}

func (p *Provider) FileContent(ctx context.Context, repo, filePath, commit string) (*remote.File, error) {
	zerolog.Ctx(ctx).Debug().Str("provider", "codecommit").Str("repo", repo).Str("path", filePath).Str("commit", commit).Msg("fetching file")

	out, err := p.client.GetFile(ctx, &codecommit.GetFileInput{
		RepositoryName:  aws.String(repo),
		FilePath:        aws.String(filePath),
		CommitSpecifier: aws.String(commit),
	})
	if err != nil {
		return nil, errors.Errorf("fetching %s from %s: %w", filePath, repo, mapError(err))
	}
	return &remote.File{Content: out.FileContent}, nil
}

func (p *Provider) Link(ctx context.Context, repo string, entry remote.DirectoryEntry, commit string) (*remote.Link, error) {
	return remote.LinkFromContent(ctx, p, repo, entry, commit)
}

func mapError(err error) error {
	var (
		noRepo   *types.RepositoryDoesNotExistException
		noBranch *types.BranchDoesNotExistException
		noFolder *types.FolderDoesNotExistException
		noFile   *types.FileDoesNotExistException
		noCommit *types.CommitDoesNotExistException
	)
	switch {
	case errors.As(err, &noRepo), errors.As(err, &noBranch), errors.As(err, &noFolder),
		errors.As(err, &noFile), errors.As(err, &noCommit):
		return errors.Errorf("%s: %w", err.Error(), remote.ErrNotFound)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return errors.Errorf("%s: %w", apiErr.ErrorMessage(), remote.ErrRateLimited)
		case "AccessDeniedException", "UnrecognizedClientException", "InvalidSignatureException", "ExpiredTokenException":
			return errors.Errorf("%s: %w", apiErr.ErrorMessage(), remote.ErrAuthFailure)
		}
	}
	return err
}
