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

package source

import (
	"fmt"
	"path"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// 🏷️ Provider identifies a remote hosting API
type Provider string

const (
	GitHub          Provider = "github"
	GitLab          Provider = "gitlab"
	Bitbucket       Provider = "bitbucket"
	BitbucketServer Provider = "bitbucket_server"
	Azure           Provider = "azure"
	CodeCommit      Provider = "codecommit"
)

var (
	ErrUnsupportedProvider  = errors.Base("unsupported provider")
	ErrUnsupportedOperation = errors.Base("unsupported operation")
	ErrInvalidHost          = errors.Base("hostname and api endpoint must be set together")
)

type hostDefaults struct {
	hostname    string
	apiEndpoint string
}

// bitbucket_server has no public instance, so both values must be given explicitly.
var defaults = map[Provider]hostDefaults{
	GitHub:          {hostname: "github.com", apiEndpoint: "https://api.github.com/"},
	GitLab:          {hostname: "gitlab.com", apiEndpoint: "https://gitlab.com/api/v4"},
	Bitbucket:       {hostname: "bitbucket.org", apiEndpoint: "https://api.bitbucket.org/2.0/"},
	BitbucketServer: {},
	Azure:           {hostname: "dev.azure.com", apiEndpoint: "https://dev.azure.com/"},
	CodeCommit:      {hostname: "us-east-1"},
}

// 🔍 ParseProvider validates a provider name
func ParseProvider(name string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := defaults[p]; !ok {
		return "", errors.Errorf("%q: %w", name, ErrUnsupportedProvider)
	}
	return p, nil
}

// DefaultHostname returns the provider's public hostname.
func DefaultHostname(p Provider) (string, error) {
	d, ok := defaults[p]
	if !ok {
		return "", errors.Errorf("%q: %w", p, ErrUnsupportedProvider)
	}
	return d.hostname, nil
}

// DefaultAPIEndpoint returns the provider's public API endpoint.
func DefaultAPIEndpoint(p Provider) (string, error) {
	d, ok := defaults[p]
	if !ok {
		return "", errors.Errorf("%q: %w", p, ErrUnsupportedProvider)
	}
	return d.apiEndpoint, nil
}

// 📦 Source describes one repository location: which host, which repository, which
// directory inside it and which branch or commit to read. A Source is a value and is
// never modified after New returns; the With* helpers return copies.
type Source struct {
	provider    Provider
	repo        string
	directory   string
	branch      string
	commit      string
	hostname    string
	apiEndpoint string
}

// 🔧 Option customizes a Source built by New
type Option func(*Source)

func WithDirectory(dir string) Option {
	return func(s *Source) { s.directory = dir }
}

func WithBranch(branch string) Option {
	return func(s *Source) { s.branch = branch }
}

// WithCommit pins the source to a sha; branch resolution is skipped entirely.
func WithCommit(commit string) Option {
	return func(s *Source) { s.commit = commit }
}

func WithHostname(hostname string) Option {
	return func(s *Source) { s.hostname = hostname }
}

func WithAPIEndpoint(apiEndpoint string) Option {
	return func(s *Source) { s.apiEndpoint = apiEndpoint }
}

// 🏭 New builds a normalized Source. Hostname and API endpoint are either both given or
// both taken from the provider defaults; codecommit is exempt because it has no API
// endpoint and its hostname is the AWS region.
func New(provider Provider, repo string, opts ...Option) (Source, error) {
	if _, ok := defaults[provider]; !ok {
		return Source{}, errors.Errorf("%q: %w", provider, ErrUnsupportedProvider)
	}

	s := Source{provider: provider, repo: strings.Trim(strings.TrimSpace(repo), "/")}
	for _, opt := range opts {
		opt(&s)
	}

	if s.repo == "" {
		return Source{}, errors.Errorf("empty repository for provider %s", provider)
	}

	if provider != CodeCommit && (s.hostname == "") != (s.apiEndpoint == "") {
		return Source{}, errors.Errorf("%s source %s: %w", provider, s.repo, ErrInvalidHost)
	}

	d := defaults[provider]
	if s.hostname == "" {
		s.hostname = d.hostname
	}
	if s.apiEndpoint == "" {
		s.apiEndpoint = d.apiEndpoint
	}
	if s.hostname == "" {
		return Source{}, errors.Errorf("%s requires an explicit hostname and api endpoint: %w", provider, ErrInvalidHost)
	}

	s.directory = NormalizeDirectory(s.directory)
	s.branch = strings.TrimPrefix(strings.TrimSpace(s.branch), "refs/heads/")
	s.commit = strings.TrimSpace(s.commit)

	return s, nil
}

// NormalizeDirectory returns dir as a cleaned, slash-rooted path ("/" for the root).
func NormalizeDirectory(dir string) string {
	cleaned := strings.Trim(path.Clean("/"+dir), "/")
	return "/" + cleaned
}

func (s Source) Provider() Provider  { return s.provider }
func (s Source) Repo() string        { return s.repo }
func (s Source) Directory() string   { return s.directory }
func (s Source) Branch() string      { return s.branch }
func (s Source) Commit() string      { return s.commit }
func (s Source) Hostname() string    { return s.hostname }
func (s Source) APIEndpoint() string { return s.apiEndpoint }

// AtCommit returns a copy of the source pinned to commit.
func (s Source) AtCommit(commit string) Source {
	s.commit = commit
	return s
}

// ForRepo returns a copy of the source pointing at another repository on the same host,
// rooted at "/" with no branch or commit.
func (s Source) ForRepo(repo string) Source {
	s.repo = strings.Trim(repo, "/")
	s.directory = "/"
	s.branch = ""
	s.commit = ""
	return s
}

// Organization is the first segment of the repository id.
func (s Source) Organization() string {
	return strings.Split(s.repo, "/")[0]
}

// UnscopedRepo is the last segment of the repository id.
func (s Source) UnscopedRepo() string {
	parts := strings.Split(s.repo, "/")
	return parts[len(parts)-1]
}

// 🧭 Project returns the Azure DevOps project. Azure repo ids come in two shapes:
// org/project/_git/repo and org/_git/repo, where the project shares the repo's name.
func (s Source) Project() (string, error) {
	if s.provider != Azure {
		return "", errors.Errorf("project is only defined for azure, not %s: %w", s.provider, ErrUnsupportedOperation)
	}

	parts := strings.SplitN(s.repo, "/_git/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", errors.Errorf("malformed azure repository %q", s.repo)
	}

	head := strings.Split(parts[0], "/")
	if len(head) == 2 {
		return head[1], nil
	}
	return parts[1], nil
}

// 🔗 URL returns the repository's web URL.
func (s Source) URL() string {
	if s.provider == BitbucketServer {
		project, slug, _ := strings.Cut(s.repo, "/")
		return fmt.Sprintf("https://%s/projects/%s/repos/%s", s.hostname, project, slug)
	}
	return "https://" + s.hostname + "/" + s.repo
}

// 🔗 URLWithDirectory returns a browsable URL for the source's directory.
func (s Source) URLWithDirectory() (string, error) {
	if s.provider == CodeCommit {
		return "", errors.Errorf("codecommit has no browsable url: %w", ErrUnsupportedOperation)
	}

	if s.directory == "/" {
		return s.URL(), nil
	}
	dir := strings.TrimPrefix(s.directory, "/")

	switch s.provider {
	case GitHub, GitLab:
		return s.URL() + "/" + path.Join("tree", refOr(s.branch, "HEAD"), dir), nil
	case Bitbucket:
		return s.URL() + "/" + path.Join("src", refOr(s.branch, "default"), dir), nil
	case Azure:
		u := s.URL() + "?path=" + s.directory
		if s.branch != "" {
			u += "&version=GB" + s.branch
		}
		return u, nil
	case BitbucketServer:
		u := s.URL() + "/" + path.Join("browse", dir)
		if s.branch != "" {
			u += "?at=refs/heads/" + s.branch
		}
		return u, nil
	default:
		return "", errors.Errorf("%q: %w", s.provider, ErrUnsupportedProvider)
	}
}

// String renders provider:repo@ref/dir for logs.
func (s Source) String() string {
	ref := s.commit
	if ref == "" {
		ref = refOr(s.branch, "default")
	}
	return fmt.Sprintf("%s:%s@%s%s", s.provider, s.repo, ref, s.directory)
}

func refOr(ref, fallback string) string {
	if ref == "" {
		return fallback
	}
	return ref
}
