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

package remote

import (
	"context"
	"path"
	"strings"

	"github.com/go-ini/ini"
	"gitlab.com/tozd/go/errors"
)

// GitmodulesPath is where git records submodule urls
const GitmodulesPath = ".gitmodules"

// Submodule is one [submodule "name"] section of a .gitmodules file
type Submodule struct {
	Name   string
	Path   string
	URL    string
	Branch string
}

// 🧩 ParseGitmodules reads the submodule sections of a .gitmodules file. Sections
// without a path or url are skipped.
func ParseGitmodules(data []byte) ([]Submodule, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		SkipUnrecognizableLines: true,
	}, data)
	if err != nil {
		return nil, errors.Errorf("parsing %s: %w", GitmodulesPath, err)
	}

	var subs []Submodule
	for _, sec := range cfg.Sections() {
		kind, name, ok := strings.Cut(sec.Name(), " ")
		if !ok || kind != "submodule" {
			continue
		}
		sub := Submodule{
			Name:   strings.Trim(strings.TrimSpace(name), `"`),
			Path:   strings.Trim(sec.Key("path").String(), "/"),
			URL:    sec.Key("url").String(),
			Branch: sec.Key("branch").String(),
		}
		if sub.Path == "" || sub.URL == "" {
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// ContentReader is the part of a Provider needed to read link metadata
type ContentReader interface {
	FileContent(ctx context.Context, repo, path, commit string) (*File, error)
}

// SubmoduleLink looks the entry up in .gitmodules at commit; the pinned commit comes
// from the listing.
func SubmoduleLink(ctx context.Context, r ContentReader, repo string, entry DirectoryEntry, commit string) (*Link, error) {
	file, err := r.FileContent(ctx, repo, GitmodulesPath, commit)
	if err != nil {
		return nil, errors.Errorf("reading %s: %w", GitmodulesPath, err)
	}

	subs, err := ParseGitmodules(file.Content)
	if err != nil {
		return nil, err
	}

	for _, sub := range subs {
		if sub.Path == entry.Path {
			return &Link{Kind: KindSubmodule, URL: sub.URL, Commit: entry.SHA}, nil
		}
	}
	return nil, errors.Errorf("submodule %s missing from %s: %w", entry.Path, GitmodulesPath, ErrNotFound)
}

// SymlinkLink reads the link blob and resolves its target against the entry's directory.
func SymlinkLink(ctx context.Context, r ContentReader, repo string, entry DirectoryEntry, commit string) (*Link, error) {
	file, err := r.FileContent(ctx, repo, entry.Path, commit)
	if err != nil {
		return nil, errors.Errorf("reading symlink %s: %w", entry.Path, err)
	}

	target, err := ResolveSymlink(entry.Path, string(file.Content))
	if err != nil {
		return nil, err
	}
	return &Link{Kind: KindSymlink, Target: target}, nil
}

// LinkFromContent dispatches on the entry kind for providers that expose link data only
// through file contents.
func LinkFromContent(ctx context.Context, r ContentReader, repo string, entry DirectoryEntry, commit string) (*Link, error) {
	switch entry.Kind {
	case KindSubmodule:
		return SubmoduleLink(ctx, r, repo, entry, commit)
	case KindSymlink:
		return SymlinkLink(ctx, r, repo, entry, commit)
	default:
		return nil, errors.Errorf("%s entry %s has no link: %w", entry.Kind, entry.Path, ErrUnsupported)
	}
}

// 🔀 ResolveSymlink turns the raw target of the link at linkPath into a repository
// relative path. Absolute targets are taken from the root.
func ResolveSymlink(linkPath, raw string) (string, error) {
	target := strings.TrimSpace(raw)
	if target == "" {
		return "", errors.Errorf("symlink %s has an empty target: %w", linkPath, ErrNotFound)
	}

	var joined string
	if strings.HasPrefix(target, "/") {
		joined = path.Clean(target)
	} else {
		joined = path.Join("/", path.Dir(linkPath), target)
	}

	// path.Join clamps ".." at the root, so detect escapes before cleaning
	if escapes(path.Dir(linkPath), target) {
		return "", errors.Errorf("symlink %s points outside the repository: %w", linkPath, ErrNotFound)
	}
	return strings.TrimPrefix(joined, "/"), nil
}

func escapes(dir, target string) bool {
	if strings.HasPrefix(target, "/") {
		return false
	}
	depth := 0
	if d := strings.Trim(dir, "/."); d != "" {
		depth = len(strings.Split(d, "/"))
	}
	for _, seg := range strings.Split(target, "/") {
		switch seg {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return true
			}
		default:
			depth++
		}
	}
	return false
}
