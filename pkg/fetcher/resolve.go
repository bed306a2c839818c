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
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/repofetch/pkg/remote"
	"github.com/walteh/repofetch/pkg/source"
	"gitlab.com/tozd/go/errors"
)

// discover walks from the parent of p up to the root looking for the submodule or
// symlink that hides p. It reports whether a new indirection was recorded.
func (s *Session) discover(ctx context.Context, commit, p string) (bool, error) {
	logger := zerolog.Ctx(ctx)

	dir, child := parent(p), path.Base(p)
	for {
		entries, err := s.listAt(ctx, s.locate(commit, dir, true))
		if err != nil {
			switch {
			case errors.Is(err, remote.ErrNotFound):
				if dir == "" {
					return false, &RepoNotFoundError{Source: s.src}
				}
			case s.opts.ancestorErrors == AncestorErrorsAbort:
				return false, errors.Errorf("listing ancestor %s of %s: %w", displayPath(dir), displayPath(p), err)
			default:
				logger.Debug().Err(err).Str("ancestor", displayPath(dir)).Msg("ignoring ancestor listing failure")
				if dir == "" {
					return false, nil
				}
			}
			child, dir = path.Base(dir), parent(dir)
			continue
		}

		entry, ok := remote.FindEntry(entries, child)
		if !ok || (entry.Kind != remote.KindSubmodule && entry.Kind != remote.KindSymlink) {
			return false, nil
		}

		forPath := strings.Trim(path.Join(dir, child), "/")
		if _, known := s.linked.Get(forPath); known {
			// already rewritten and still missing
			return false, nil
		}

		ind, err := s.follow(ctx, commit, forPath, entry)
		if err != nil {
			return false, err
		}

		logger.Debug().Str("path", displayPath(forPath)).Str("kind", string(ind.Kind)).
			Str("target", ind.Target.String()).Str("target_path", ind.Path).Msg("discovered indirection")
		s.linked.Put(ind)
		return true, nil
	}
}

// readThroughSymlink handles hosts that answer a file symlink with the link text. When
// the parent listing marks p as a symlink the link is recorded and p is read again
// through it.
func (s *Session) readThroughSymlink(ctx context.Context, commit, p string) (*remote.File, bool, error) {
	if p == "" {
		return nil, false, nil
	}

	entries, err := s.listAt(ctx, s.locate(commit, parent(p), true))
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("path", displayPath(p)).Msg("parent listing unavailable, skipping symlink check")
		return nil, false, nil
	}
	entry, ok := remote.FindEntry(entries, path.Base(p))
	if !ok || entry.Kind != remote.KindSymlink {
		return nil, false, nil
	}

	ind, err := s.follow(ctx, commit, p, entry)
	if err != nil {
		return nil, false, err
	}
	zerolog.Ctx(ctx).Debug().Str("path", displayPath(p)).Str("target_path", ind.Path).Msg("reading through file symlink")
	s.linked.Put(ind)

	file, err := s.readAt(ctx, s.locate(commit, p, true))
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return nil, false, &DependencyFileNotFoundError{Path: displayPath(p)}
		}
		return nil, false, err
	}
	return file, true, nil
}

// isDirectory reports whether the parent listing shows p as a directory or submodule.
// Some hosts answer a raw read of a directory with not found.
func (s *Session) isDirectory(ctx context.Context, commit, p string, follow bool) bool {
	if p == "" {
		return true
	}
	entries, err := s.listAt(ctx, s.locate(commit, parent(p), follow))
	if err != nil {
		return false
	}
	entry, ok := remote.FindEntry(entries, path.Base(p))
	return ok && (entry.Kind == remote.KindDir || entry.Kind == remote.KindSubmodule)
}

func parent(p string) string {
	d := path.Dir(p)
	if d == "." || d == "/" {
		return ""
	}
	return d
}

// follow resolves the link behind entry, which was listed at forPath's parent.
func (s *Session) follow(ctx context.Context, commit, forPath string, entry remote.DirectoryEntry) (Indirection, error) {
	owner := s.locate(commit, parent(forPath), true).src

	client, err := s.client(ctx, owner)
	if err != nil {
		return Indirection{}, err
	}

	link, err := client.Link(ctx, owner.Repo(), entry, owner.Commit())
	if err != nil {
		return Indirection{}, errors.Errorf("resolving %s %s: %w", entry.Kind, displayPath(forPath), err)
	}

	switch link.Kind {
	case remote.KindSubmodule:
		target, err := submoduleSource(owner, link.URL)
		if err != nil {
			return Indirection{}, err
		}
		commit := link.Commit
		if commit == "" {
			commit = entry.SHA
		}
		return Indirection{ForPath: forPath, Kind: remote.KindSubmodule, Target: target.AtCommit(commit), Path: ""}, nil
	case remote.KindSymlink:
		return Indirection{ForPath: forPath, Kind: remote.KindSymlink, Target: owner, Path: link.Target}, nil
	default:
		return Indirection{}, errors.Errorf("unexpected link kind %q for %s: %w", link.Kind, displayPath(forPath), remote.ErrUnsupported)
	}
}

// submoduleSource turns a submodule url into a source. Recognized hosting urls are
// parsed directly; relative urls resolve against the owning repository, and other
// urls on the owner's host use their path as the repository id.
func submoduleSource(owner source.Source, raw string) (source.Source, error) {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../") {
		repo := trimGit(path.Join(owner.Repo(), raw))
		return owner.ForRepo(repo), nil
	}

	if src, ok := source.FromURL(raw); ok {
		if src.Provider() == owner.Provider() && src.Hostname() == owner.Hostname() {
			return owner.ForRepo(src.Repo()), nil
		}
		return src, nil
	}

	host, repoPath, ok := splitRemote(raw)
	if ok && strings.EqualFold(host, owner.Hostname()) {
		return owner.ForRepo(trimGit(repoPath)), nil
	}

	return source.Source{}, errors.Errorf("submodule url %q is not on a supported host: %w", raw, remote.ErrUnsupported)
}

// splitRemote understands scheme urls and scp-like git@host:path remotes.
func splitRemote(raw string) (host, repoPath string, ok bool) {
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", "", false
		}
		return u.Hostname(), strings.Trim(u.Path, "/"), true
	}

	at := strings.Index(raw, "@")
	colon := strings.Index(raw, ":")
	if colon < 0 || colon < at {
		return "", "", false
	}
	return raw[at+1 : colon], strings.Trim(raw[colon+1:], "/"), true
}

func trimGit(repo string) string {
	return strings.TrimSuffix(strings.Trim(repo, "/"), ".git")
}
