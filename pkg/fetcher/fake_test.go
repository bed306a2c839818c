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
	"sort"
	"strings"

	"github.com/walteh/repofetch/pkg/remote"
	"gitlab.com/tozd/go/errors"
)

type fakeNode struct {
	kind    remote.EntryKind
	content string
	// symlink target as stored in the blob, or submodule url
	target string
	sha    string
}

type fakeRepo struct {
	defaultBranch string
	heads         map[string]string
	empty         bool
	nodes         map[string]fakeNode
}

// fakeProvider is an in-memory remote.Provider that counts every call
type fakeProvider struct {
	repos map[string]*fakeRepo
	// followSymlinks makes FileContent resolve symlinks the way the GitHub contents api does
	followSymlinks bool
	// dirsNotFound makes FileContent answer directories with not found, like a raw file endpoint
	dirsNotFound bool
	listErrors   map[string]error
	calls          map[string]int
}

func newFakeProvider(repos map[string]*fakeRepo) *fakeProvider {
	return &fakeProvider{repos: repos, listErrors: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeProvider) count(prefix string) int {
	n := 0
	for k, v := range f.calls {
		if strings.HasPrefix(k, prefix) {
			n += v
		}
	}
	return n
}

func notFound(what string) error {
	return errors.Errorf("%s: %w", what, remote.ErrNotFound)
}

func (f *fakeProvider) repo(name string) (*fakeRepo, error) {
	r, ok := f.repos[name]
	if !ok {
		return nil, notFound(name)
	}
	return r, nil
}

// hidden reports whether p sits below a file, submodule or symlink
func (r *fakeRepo) hidden(p string) bool {
	for d := path.Dir(p); d != "." && d != "/"; d = path.Dir(d) {
		if _, ok := r.nodes[d]; ok {
			return true
		}
	}
	return false
}

func (r *fakeRepo) isDir(p string) bool {
	if p == "" {
		return true
	}
	if _, ok := r.nodes[p]; ok || r.hidden(p) {
		return false
	}
	for k := range r.nodes {
		if strings.HasPrefix(k, p+"/") {
			return true
		}
	}
	return false
}

func (f *fakeProvider) DefaultBranch(ctx context.Context, repo string) (string, error) {
	f.calls["default:"+repo]++
	r, err := f.repo(repo)
	if err != nil {
		return "", err
	}
	if r.empty {
		return "", errors.Errorf("%s: %w", repo, remote.ErrEmptyRepository)
	}
	return r.defaultBranch, nil
}

func (f *fakeProvider) ResolveCommit(ctx context.Context, repo, branch string) (string, error) {
	f.calls["resolve:"+repo]++
	r, err := f.repo(repo)
	if err != nil {
		return "", err
	}
	sha, ok := r.heads[branch]
	if !ok {
		return "", notFound(branch)
	}
	return sha, nil
}

func (f *fakeProvider) ListDirectory(ctx context.Context, repo, dir, commit string) ([]remote.DirectoryEntry, error) {
	f.calls["list:"+repo+":"+dir]++
	r, err := f.repo(repo)
	if err != nil {
		return nil, err
	}
	if err, ok := f.listErrors[repo+":"+dir]; ok {
		return nil, err
	}
	if !r.isDir(dir) {
		return nil, notFound(dir)
	}

	seen := map[string]remote.DirectoryEntry{}
	for k, n := range r.nodes {
		rel := k
		if dir != "" {
			if !strings.HasPrefix(k, dir+"/") {
				continue
			}
			rel = strings.TrimPrefix(k, dir+"/")
		}
		name, _, nested := strings.Cut(rel, "/")
		full := strings.Trim(path.Join(dir, name), "/")
		if nested {
			seen[name] = remote.DirectoryEntry{Name: name, Path: full, Kind: remote.KindDir}
			continue
		}
		seen[name] = remote.DirectoryEntry{Name: name, Path: full, Kind: n.kind, Size: int64(len(n.content)), SHA: n.sha}
	}

	entries := make([]remote.DirectoryEntry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (f *fakeProvider) FileContent(ctx context.Context, repo, p, commit string) (*remote.File, error) {
	f.calls["file:"+repo+":"+p]++
	r, err := f.repo(repo)
	if err != nil {
		return nil, err
	}
	if r.hidden(p) {
		return nil, notFound(p)
	}

	n, ok := r.nodes[p]
	if !ok {
		if r.isDir(p) && !f.dirsNotFound {
			return nil, errors.Errorf("%s: %w", p, remote.ErrNotAFile)
		}
		return nil, notFound(p)
	}

	switch n.kind {
	case remote.KindFile:
		return &remote.File{Content: []byte(n.content)}, nil
	case remote.KindSymlink:
		if !f.followSymlinks {
			return &remote.File{Content: []byte(n.target)}, nil
		}
		target, err := remote.ResolveSymlink(p, n.target)
		if err != nil {
			return nil, err
		}
		file, err := f.FileContent(ctx, repo, target, commit)
		if err != nil {
			return nil, err
		}
		if file.SymlinkTarget == "" {
			file = &remote.File{Content: file.Content, SymlinkTarget: target}
		}
		return file, nil
	default:
		return nil, notFound(p)
	}
}

func (f *fakeProvider) Link(ctx context.Context, repo string, entry remote.DirectoryEntry, commit string) (*remote.Link, error) {
	f.calls["link:"+repo+":"+entry.Path]++
	r, err := f.repo(repo)
	if err != nil {
		return nil, err
	}
	n, ok := r.nodes[entry.Path]
	if !ok {
		return nil, notFound(entry.Path)
	}

	switch n.kind {
	case remote.KindSubmodule:
		return &remote.Link{Kind: remote.KindSubmodule, URL: n.target, Commit: n.sha}, nil
	case remote.KindSymlink:
		target, err := remote.ResolveSymlink(entry.Path, n.target)
		if err != nil {
			return nil, err
		}
		return &remote.Link{Kind: remote.KindSymlink, Target: target}, nil
	default:
		return nil, errors.Errorf("%s: %w", entry.Path, remote.ErrUnsupported)
	}
}
