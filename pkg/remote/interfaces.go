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
	"sort"
	"strings"

	"github.com/walteh/repofetch/pkg/credentials"
	"github.com/walteh/repofetch/pkg/source"
	"gitlab.com/tozd/go/errors"
)

// 🏭 Factory builds a content client for src. cred is the git_source credential that
// matches the source host, or the zero value for anonymous access.
type Factory func(ctx context.Context, src source.Source, cred credentials.Credential) (Provider, error)

var registry = map[source.Provider]Factory{}

func RegisterProvider(name source.Provider, factory Factory) {
	registry[name] = factory
}

// GetProvider builds the registered client for the source's provider, authenticated with
// the credential for the source host.
func GetProvider(ctx context.Context, src source.Source, creds []credentials.Credential) (Provider, error) {
	factory, ok := registry[src.Provider()]
	if !ok {
		options := []string{}
		for k := range registry {
			options = append(options, string(k))
		}
		sort.Strings(options)
		return nil, errors.Errorf("provider %s not found, options: %s", src.Provider(), strings.Join(options, ", "))
	}
	return factory(ctx, src, credentials.ForHost(creds, src.Hostname()))
}

// Provider is the content API of one hosting service. All paths are repository
// relative without a leading slash ("" is the root) and every read is pinned to a
// commit sha.
type Provider interface {
	// DefaultBranch returns the repository's default branch name
	DefaultBranch(ctx context.Context, repo string) (string, error)
	// ResolveCommit returns the head sha of branch. An empty repository reports
	// ErrEmptyRepository.
	ResolveCommit(ctx context.Context, repo, branch string) (string, error)
	// ListDirectory returns the immediate children of dir
	ListDirectory(ctx context.Context, repo, dir, commit string) ([]DirectoryEntry, error)
	// FileContent returns the bytes of the file at path. A directory reports ErrNotAFile.
	FileContent(ctx context.Context, repo, path, commit string) (*File, error)
	// Link returns where a submodule or symlink entry points
	Link(ctx context.Context, repo string, entry DirectoryEntry, commit string) (*Link, error)
}

// EntryKind classifies a directory entry
type EntryKind string

const (
	KindFile      EntryKind = "file"
	KindDir       EntryKind = "dir"
	KindSubmodule EntryKind = "submodule"
	KindSymlink   EntryKind = "symlink"
)

// 📄 DirectoryEntry is one child of a listed directory
type DirectoryEntry struct {
	Name string
	Path string
	Kind EntryKind
	// Size is zero when the provider does not report it
	Size int64
	// SHA is the blob or tree id; for submodules it is the pinned commit
	SHA string
}

// File is the content of a file at a commit. SymlinkTarget is set when the requested
// path was a symlink that the provider followed.
type File struct {
	Content       []byte
	SymlinkTarget string
}

// 🔗 Link is the resolved target of a submodule or symlink entry. Submodules carry the
// remote URL and pinned commit; symlinks carry a repository relative Target.
type Link struct {
	Kind   EntryKind
	URL    string
	Commit string
	Target string
}

// FindEntry returns the entry named name.
func FindEntry(entries []DirectoryEntry, name string) (DirectoryEntry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return DirectoryEntry{}, false
}
