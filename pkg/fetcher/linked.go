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
	"path"
	"sort"
	"strings"

	"github.com/walteh/repofetch/pkg/remote"
	"github.com/walteh/repofetch/pkg/source"
)

// 🔗 Indirection records that everything at or below ForPath lives at Path inside
// Target (pinned to Target.Commit()).
type Indirection struct {
	ForPath string
	Kind    remote.EntryKind
	Target  source.Source
	Path    string
}

// LinkedPaths is the per session indirection cache. Entries are never evicted.
type LinkedPaths struct {
	entries map[string]Indirection
}

func NewLinkedPaths() *LinkedPaths {
	return &LinkedPaths{entries: map[string]Indirection{}}
}

func (l *LinkedPaths) Put(ind Indirection) {
	l.entries[ind.ForPath] = ind
}

// Get is an exact lookup.
func (l *LinkedPaths) Get(p string) (Indirection, bool) {
	ind, ok := l.entries[p]
	return ind, ok
}

// Match returns the indirection with the longest key that equals p or is a directory
// prefix of it. Unless submodules is set, only indirections that stay inside root count.
func (l *LinkedPaths) Match(p string, root source.Source, submodules bool) (Indirection, bool) {
	var (
		best  Indirection
		found bool
	)
	for key, ind := range l.entries {
		if !submodules && (ind.Kind == remote.KindSubmodule || !sameRepo(ind.Target, root)) {
			continue
		}
		if key != p && !strings.HasPrefix(p, key+"/") {
			continue
		}
		if !found || len(key) > len(best.ForPath) {
			best, found = ind, true
		}
	}
	return best, found
}

// Rewrite maps p under the matched indirection.
func (ind Indirection) Rewrite(p string) string {
	rest := strings.TrimPrefix(strings.TrimPrefix(p, ind.ForPath), "/")
	return strings.Trim(path.Join(ind.Path, rest), "/")
}

// All returns the entries sorted by ForPath.
func (l *LinkedPaths) All() []Indirection {
	out := make([]Indirection, 0, len(l.entries))
	for _, ind := range l.entries {
		out = append(out, ind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ForPath < out[j].ForPath })
	return out
}
