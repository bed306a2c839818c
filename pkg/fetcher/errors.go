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
	"fmt"

	"github.com/walteh/repofetch/pkg/remote"
	"github.com/walteh/repofetch/pkg/source"
)

// ErrNotAFile is returned when a file read targets a directory
var ErrNotAFile = remote.ErrNotAFile

// RepoNotFoundError means the repository itself could not be found or accessed.
type RepoNotFoundError struct {
	Source source.Source
}

func (e *RepoNotFoundError) Error() string {
	return fmt.Sprintf("repository not found: %s/%s", e.Source.Hostname(), e.Source.Repo())
}

func (e *RepoNotFoundError) Unwrap() error { return remote.ErrNotFound }

// BranchNotFoundError means the requested branch does not exist.
type BranchNotFoundError struct {
	Branch string
}

func (e *BranchNotFoundError) Error() string {
	return fmt.Sprintf("branch not found: %s", e.Branch)
}

func (e *BranchNotFoundError) Unwrap() error { return remote.ErrNotFound }

// DependencyFileNotFoundError means the path does not exist at the pinned commit, even
// after looking for a submodule or symlink above it.
type DependencyFileNotFoundError struct {
	Path string
}

func (e *DependencyFileNotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Path)
}

func (e *DependencyFileNotFoundError) Unwrap() error { return remote.ErrNotFound }
