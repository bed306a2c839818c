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

// Package credentials holds the opaque credential entries handed to a fetch session
// and picks the one that applies to a given host.
package credentials

import (
	"os"
	"strings"
)

const (
	KeyType     = "type"
	KeyHost     = "host"
	KeyUsername = "username"
	KeyPassword = "password"

	// TypeGitSource is the only credential type consulted by the remote clients.
	TypeGitSource = "git_source"
)

// 🔑 Credential is one opaque key/value credential entry. The remote clients only read
// entries of type git_source whose host matches the source host.
type Credential map[string]string

func (c Credential) Type() string     { return c[KeyType] }
func (c Credential) Host() string     { return c[KeyHost] }
func (c Credential) Username() string { return c[KeyUsername] }
func (c Credential) Password() string { return c[KeyPassword] }

// Token is the password of an entry without a username (a bearer token).
func (c Credential) Token() string {
	if c.Username() != "" {
		return ""
	}
	return c.Password()
}

// Empty reports whether the credential carries no secret at all.
func (c Credential) Empty() bool {
	return c.Password() == ""
}

// GitSource builds a git_source credential.
func GitSource(host, username, password string) Credential {
	c := Credential{KeyType: TypeGitSource, KeyHost: host, KeyPassword: password}
	if username != "" {
		c[KeyUsername] = username
	}
	return c
}

// 🔍 ForHost returns the first git_source credential for host. The zero value is
// returned when none matches, which clients treat as anonymous access.
func ForHost(creds []Credential, host string) Credential {
	host = strings.ToLower(strings.TrimSpace(host))
	for _, c := range creds {
		if c.Type() != TypeGitSource {
			continue
		}
		if strings.ToLower(c.Host()) == host {
			return c
		}
	}
	return Credential{}
}

// 🌍 FromEnv discovers credentials for the public hosts from well known environment
// variables. GITHUB_TOKEN wins over GH_TOKEN.
func FromEnv() []Credential {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) []Credential {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	var out []Credential
	if tok := get("GITHUB_TOKEN", "GH_TOKEN"); tok != "" {
		out = append(out, GitSource("github.com", "", tok))
	}
	if tok := get("GITLAB_TOKEN"); tok != "" {
		out = append(out, GitSource("gitlab.com", "", tok))
	}
	if user, pass := get("BITBUCKET_USERNAME"), get("BITBUCKET_APP_PASSWORD"); user != "" && pass != "" {
		out = append(out, GitSource("bitbucket.org", user, pass))
	}
	if tok := get("AZURE_DEVOPS_TOKEN"); tok != "" {
		out = append(out, GitSource("dev.azure.com", "", tok))
	}
	return out
}
