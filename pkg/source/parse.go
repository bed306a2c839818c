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
	"net/url"
	"regexp"
	"strings"
)

var segmentPattern = regexp.MustCompile(`^[\w.-]+$`)

var hostProviders = map[string]Provider{
	"github.com":    GitHub,
	"gitlab.com":    GitLab,
	"bitbucket.org": Bitbucket,
	"azure.com":     Azure,
}

// 🔍 FromURL recognizes GitHub, GitLab, Bitbucket Cloud and Azure DevOps repository
// URLs (https, ssh and bare host forms). It reports false instead of failing when the
// string is not a recognized repository URL.
//
//	github.com/org/repo/tree/<branch>/<dir>
//	gitlab.com/group/sub/repo/-/tree/<branch>/<dir>
//	bitbucket.org/org/repo/src/<branch>/<dir>
//	dev.azure.com/org/project/_git/repo?path=<dir>&version=GB<branch>
func FromURL(raw string) (Source, bool) {
	host, rest, ok := splitHost(strings.TrimSpace(raw))
	if !ok {
		return Source{}, false
	}
	provider, ok := providerForHost(host)
	if !ok {
		return Source{}, false
	}

	rest, query := splitQuery(rest)
	segs := segments(rest)

	var repo, branch, dir string

	switch provider {
	case GitHub:
		repo, branch, dir, ok = parseOwnerRepo(segs, "tree", "blob")
	case Bitbucket:
		repo, branch, dir, ok = parseOwnerRepo(segs, "src")
	case GitLab:
		repo, branch, dir, ok = parseGitLab(segs)
	case Azure:
		repo, branch, dir, ok = parseAzure(segs, query)
	}
	if !ok {
		return Source{}, false
	}

	s, err := New(provider, repo, WithBranch(branch), WithDirectory(dir))
	if err != nil {
		return Source{}, false
	}
	return s, true
}

// splitHost separates the host from the path of scheme, scp-style and bare urls.
func splitHost(raw string) (host, rest string, ok bool) {
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", "", false
		}
		rest = strings.TrimPrefix(u.Path, "/")
		if u.RawQuery != "" {
			rest += "?" + u.RawQuery
		}
		return strings.ToLower(u.Hostname()), rest, true
	}

	if at := strings.IndexByte(raw, '@'); at >= 0 && at < strings.IndexAny(raw, ":/") {
		raw = raw[at+1:]
	}
	i := strings.IndexAny(raw, ":/")
	if i <= 0 {
		return "", "", false
	}
	return strings.ToLower(raw[:i]), raw[i+1:], true
}

// subdomains of a known host belong to it (ssh.dev.azure.com, www.github.com)
func providerForHost(host string) (Provider, bool) {
	for known, provider := range hostProviders {
		if host == known || strings.HasSuffix(host, "."+known) {
			return provider, true
		}
	}
	return "", false
}

func splitQuery(rest string) (string, string) {
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		rest = rest[:i]
	}
	before, after, _ := strings.Cut(rest, "?")
	return before, after
}

func segments(rest string) []string {
	var out []string
	for _, seg := range strings.Split(rest, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func trimGitSuffix(name string) string {
	return strings.TrimSuffix(strings.TrimSuffix(name, ".git"), ".")
}

// owner/name followed by an optional <marker>/<branch>/<dir...>
func parseOwnerRepo(segs []string, markers ...string) (repo, branch, dir string, ok bool) {
	if len(segs) < 2 || !segmentPattern.MatchString(segs[0]) || !segmentPattern.MatchString(segs[1]) {
		return "", "", "", false
	}

	name := trimGitSuffix(segs[1])
	if name == "" {
		return "", "", "", false
	}
	repo = segs[0] + "/" + name

	if len(segs) >= 4 && isOneOf(segs[2], markers...) {
		branch = segs[3]
		dir = strings.Join(segs[4:], "/")
	}
	return repo, branch, dir, true
}

// gitlab repos may live in nested groups, so the repo id ends at the first "-", "tree"
// or "blob" segment after owner/name
func parseGitLab(segs []string) (repo, branch, dir string, ok bool) {
	end := len(segs)
	for i := 2; i < len(segs); i++ {
		if segs[i] == "-" || isOneOf(segs[i], "tree", "blob") {
			end = i
			break
		}
	}
	if end < 2 {
		return "", "", "", false
	}

	repoSegs := append([]string(nil), segs[:end]...)
	repoSegs[end-1] = trimGitSuffix(repoSegs[end-1])
	for _, seg := range repoSegs {
		if seg == "" || strings.ContainsAny(seg, " \t") {
			return "", "", "", false
		}
	}
	repo = strings.Join(repoSegs, "/")

	tail := segs[end:]
	if len(tail) > 0 && tail[0] == "-" {
		tail = tail[1:]
	}
	if len(tail) >= 2 && isOneOf(tail[0], "tree", "blob") {
		branch = tail[1]
		dir = strings.Join(tail[2:], "/")
	}
	return repo, branch, dir, true
}

func parseAzure(segs []string, query string) (repo, branch, dir string, ok bool) {
	// ssh remotes: v3/org/project/repo
	if len(segs) == 4 && segs[0] == "v3" {
		segs = []string{segs[1], segs[2], "_git", segs[3]}
	}

	gitIdx := -1
	for i, seg := range segs {
		if seg == "_git" {
			gitIdx = i
			break
		}
	}
	if gitIdx != 1 && gitIdx != 2 {
		return "", "", "", false
	}
	if len(segs) <= gitIdx+1 {
		return "", "", "", false
	}
	for _, seg := range segs[:gitIdx] {
		if !segmentPattern.MatchString(seg) {
			return "", "", "", false
		}
	}

	name := trimGitSuffix(segs[gitIdx+1])
	if !segmentPattern.MatchString(name) {
		return "", "", "", false
	}
	repo = strings.Join(append(append([]string(nil), segs[:gitIdx+1]...), name), "/")

	values, err := url.ParseQuery(query)
	if err == nil {
		dir = values.Get("path")
		if v := values.Get("version"); strings.HasPrefix(v, "GB") {
			branch = strings.TrimPrefix(v, "GB")
		}
	}
	return repo, branch, dir, true
}

func isOneOf(s string, options ...string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}
