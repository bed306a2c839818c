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
	"path"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/walteh/repofetch/pkg/credentials"
	"github.com/walteh/repofetch/pkg/remote"
	"github.com/walteh/repofetch/pkg/source"
	"gitlab.com/tozd/go/errors"
)

// 📄 FileContent is a file read through a Session
type FileContent struct {
	// Name is the requested name, relative to Directory
	Name string
	// Path is the repository path in the session's own path space
	Path      string
	Directory string
	// Kind is KindSymlink when Path is a known symlink
	Kind          remote.EntryKind
	Content       []byte
	SymlinkTarget string
}

// location is a path inside a concrete repository at a concrete commit
type location struct {
	src  source.Source
	path string
}

func (l location) key() string {
	return strings.Join([]string{string(l.src.Provider()), l.src.Hostname(), l.src.Repo(), l.src.Commit(), l.path}, "|")
}

type listing struct {
	entries  []remote.DirectoryEntry
	notFound error
}

// 📦 Session reads one source at one commit
type Session struct {
	src   source.Source
	creds []credentials.Credential
	opts  options

	clients map[string]remote.Provider
	linked  *LinkedPaths

	listings *lru.Cache[string, listing]
	files    *lru.Cache[string, *remote.File]

	commitResolved bool
	commit         string
}

// 🏭 New creates a session for src. Nothing is fetched until the first read.
func New(src source.Source, creds []credentials.Credential, opts ...Option) (*Session, error) {
	o := options{
		listingCacheSize: DefaultListingCacheSize,
		fileCacheSize:    DefaultFileCacheSize,
		ancestorErrors:   AncestorErrorsIgnore,
		providers:        map[source.Provider]remote.Provider{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	if _, err := ParseAncestorErrorPolicy(string(o.ancestorErrors)); err != nil {
		return nil, err
	}

	listings, err := lru.New[string, listing](o.listingCacheSize)
	if err != nil {
		return nil, errors.Errorf("creating listing cache: %w", err)
	}
	files, err := lru.New[string, *remote.File](o.fileCacheSize)
	if err != nil {
		return nil, errors.Errorf("creating file cache: %w", err)
	}

	return &Session{
		src:      src,
		creds:    creds,
		opts:     o,
		clients:  map[string]remote.Provider{},
		linked:   NewLinkedPaths(),
		listings: listings,
		files:    files,
	}, nil
}

func (s *Session) Source() source.Source { return s.src }

// Indirections returns a snapshot of the discovered indirections, sorted by path.
func (s *Session) Indirections() []Indirection {
	return s.linked.All()
}

func (s *Session) client(ctx context.Context, src source.Source) (remote.Provider, error) {
	if c, ok := s.opts.providers[src.Provider()]; ok {
		return c, nil
	}

	key := strings.Join([]string{string(src.Provider()), src.Hostname(), src.APIEndpoint()}, "|")
	if c, ok := s.clients[key]; ok {
		return c, nil
	}

	c, err := remote.GetProvider(ctx, src, s.creds)
	if err != nil {
		return nil, err
	}
	s.clients[key] = c
	return c, nil
}

// 📌 Commit resolves the sha every read is pinned to. An explicit source commit wins;
// otherwise the branch (or default branch) head is resolved once and remembered. An
// empty repository resolves to "" with no error.
func (s *Session) Commit(ctx context.Context) (string, error) {
	if c := s.src.Commit(); c != "" {
		return c, nil
	}
	if s.commitResolved {
		return s.commit, nil
	}

	commit, err := s.resolveCommit(ctx)
	if err != nil {
		return "", err
	}

	zerolog.Ctx(ctx).Debug().Str("source", s.src.String()).Str("commit", commit).Msg("pinned commit")
	s.commit, s.commitResolved = commit, true
	return commit, nil
}

func (s *Session) resolveCommit(ctx context.Context) (string, error) {
	client, err := s.client(ctx, s.src)
	if err != nil {
		return "", err
	}

	branch := s.src.Branch()
	if branch == "" {
		branch, err = client.DefaultBranch(ctx, s.src.Repo())
		switch {
		case errors.Is(err, remote.ErrEmptyRepository):
			return "", nil
		case errors.Is(err, remote.ErrNotFound):
			return "", &RepoNotFoundError{Source: s.src}
		case err != nil:
			return "", errors.Errorf("resolving default branch of %s: %w", s.src.Repo(), err)
		}
	}

	commit, err := client.ResolveCommit(ctx, s.src.Repo(), branch)
	switch {
	case errors.Is(err, remote.ErrEmptyRepository):
		return "", nil
	case errors.Is(err, remote.ErrNotFound):
		return "", &BranchNotFoundError{Branch: branch}
	case err != nil:
		return "", errors.Errorf("resolving branch %s of %s: %w", branch, s.src.Repo(), err)
	}
	return commit, nil
}

// normalize joins name with the source directory and returns a repository path
// without a leading slash ("" is the root).
func (s *Session) normalize(name string) string {
	return strings.Trim(path.Join(s.src.Directory(), name), "/")
}

func displayPath(p string) string {
	return "/" + p
}

// locate pins p to the commit and rewrites it through the known indirections.
// Symlinks always apply; submodules only when follow is set.
func (s *Session) locate(commit, p string, follow bool) location {
	loc := location{src: s.src.AtCommit(commit), path: p}
	root := loc.src

	current := p
	for hop := 0; hop < maxRewriteHops; hop++ {
		ind, ok := s.linked.Match(current, root, follow)
		if !ok {
			return loc
		}
		loc = location{src: ind.Target, path: ind.Rewrite(current)}
		if !sameRepo(ind.Target, root) || loc.path == current {
			return loc
		}
		current = loc.path
	}
	return loc
}

func sameRepo(a, b source.Source) bool {
	return a.Provider() == b.Provider() && a.Hostname() == b.Hostname() && a.Repo() == b.Repo() && a.Commit() == b.Commit()
}

func (s *Session) listAt(ctx context.Context, loc location) ([]remote.DirectoryEntry, error) {
	if cached, ok := s.listings.Get(loc.key()); ok {
		return cached.entries, cached.notFound
	}

	client, err := s.client(ctx, loc.src)
	if err != nil {
		return nil, err
	}

	entries, err := client.ListDirectory(ctx, loc.src.Repo(), loc.path, loc.src.Commit())
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			s.listings.Add(loc.key(), listing{notFound: err})
		}
		return nil, err
	}

	s.listings.Add(loc.key(), listing{entries: entries})
	return entries, nil
}

func (s *Session) readAt(ctx context.Context, loc location) (*remote.File, error) {
	if cached, ok := s.files.Get(loc.key()); ok {
		return cached, nil
	}

	client, err := s.client(ctx, loc.src)
	if err != nil {
		return nil, err
	}

	file, err := client.FileContent(ctx, loc.src.Repo(), loc.path, loc.src.Commit())
	if err != nil {
		return nil, err
	}

	s.files.Add(loc.key(), file)
	return file, nil
}

// 📂 ListDirectory lists dir (relative to the source directory). Entry paths are in the
// session's path space, so entries inside a submodule keep their outer path.
func (s *Session) ListDirectory(ctx context.Context, dir string, opts ...CallOption) ([]remote.DirectoryEntry, error) {
	co := applyCallOptions(opts)
	p := s.normalize(dir)

	commit, err := s.Commit(ctx)
	if err != nil {
		return nil, err
	}
	if commit == "" {
		return nil, &DependencyFileNotFoundError{Path: displayPath(p)}
	}

	var entries []remote.DirectoryEntry
	err = s.withRetry(ctx, commit, p, co.follow, func(loc location) error {
		var err error
		entries, err = s.listAt(ctx, loc)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]remote.DirectoryEntry, len(entries))
	for i, e := range entries {
		e.Path = strings.Trim(path.Join(p, e.Name), "/")
		out[i] = e
	}
	return out, nil
}

// 📄 FetchFile reads name (relative to the source directory) at the pinned commit.
func (s *Session) FetchFile(ctx context.Context, name string, opts ...CallOption) (*FileContent, error) {
	co := applyCallOptions(opts)
	p := s.normalize(name)

	commit, err := s.Commit(ctx)
	if err != nil {
		return nil, err
	}
	if commit == "" {
		return nil, &DependencyFileNotFoundError{Path: displayPath(p)}
	}

	var (
		file *remote.File
		loc  location
	)
	err = s.withRetry(ctx, commit, p, co.follow, func(l location) error {
		var err error
		loc = l
		file, err = s.readAt(ctx, l)
		return err
	})
	if err != nil {
		var missing *DependencyFileNotFoundError
		if errors.As(err, &missing) && s.isDirectory(ctx, commit, p, co.follow) {
			return nil, errors.Errorf("%s: %w", displayPath(p), ErrNotAFile)
		}
		return nil, err
	}

	if file.SymlinkTarget != "" {
		if _, known := s.linked.Get(p); !known {
			s.linked.Put(Indirection{ForPath: p, Kind: remote.KindSymlink, Target: loc.src, Path: file.SymlinkTarget})
		}
		// later reads of p are rewritten to the target
		s.files.Add(location{src: loc.src, path: file.SymlinkTarget}.key(), &remote.File{Content: file.Content})
	} else if _, known := s.linked.Get(p); co.follow && !known {
		resolved, ok, err := s.readThroughSymlink(ctx, commit, p)
		if err != nil {
			return nil, err
		}
		if ok {
			file = resolved
		}
	}

	fc := &FileContent{
		Name:          path.Clean(strings.TrimPrefix(name, "/")),
		Path:          displayPath(p),
		Directory:     s.src.Directory(),
		Kind:          remote.KindFile,
		Content:       file.Content,
		SymlinkTarget: file.SymlinkTarget,
	}
	if ind, ok := s.linked.Get(p); ok && ind.Kind == remote.KindSymlink {
		fc.Kind = remote.KindSymlink
		if fc.SymlinkTarget == "" {
			fc.SymlinkTarget = ind.Path
		}
	}
	return fc, nil
}

// withRetry runs read against the located path. A not found on the first attempt,
// with follow set, starts the discovery walk; a discovered indirection earns exactly
// one more attempt.
func (s *Session) withRetry(ctx context.Context, commit, p string, follow bool, read func(location) error) error {
	for attempt := 0; attempt < 2; attempt++ {
		loc := s.locate(commit, p, follow)

		err := read(loc)
		if err == nil {
			return nil
		}
		if !errors.Is(err, remote.ErrNotFound) {
			return err
		}

		if attempt > 0 || !follow {
			break
		}

		found, err := s.discover(ctx, commit, p)
		if err != nil {
			return err
		}
		if !found {
			break
		}
		zerolog.Ctx(ctx).Debug().Str("path", p).Msg("retrying after discovering indirection")
	}
	return &DependencyFileNotFoundError{Path: displayPath(p)}
}
