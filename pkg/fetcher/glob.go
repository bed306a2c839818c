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

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/walteh/repofetch/pkg/remote"
	"gitlab.com/tozd/go/errors"
)

// 🌟 FetchGlob fetches every file whose path relative to the source directory matches
// pattern (doublestar syntax). Only the directories below the pattern's static prefix
// are listed. Results are in listing order.
func (s *Session) FetchGlob(ctx context.Context, pattern string, opts ...CallOption) ([]*FileContent, error) {
	pattern = strings.TrimPrefix(pattern, "/")
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.Errorf("invalid glob pattern %q", pattern)
	}

	base, _ := doublestar.SplitPattern(pattern)
	if base == "." {
		base = ""
	}

	var out []*FileContent
	err := s.walk(ctx, base, opts, func(rel string, entry remote.DirectoryEntry) error {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil || !ok {
			return err
		}

		fc, err := s.FetchFile(ctx, rel, opts...)
		if err != nil {
			// symlinks to directories are not files
			if entry.Kind == remote.KindSymlink && errors.Is(err, ErrNotAFile) {
				return nil
			}
			return err
		}
		out = append(out, fc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().Str("pattern", pattern).Int("matches", len(out)).Msg("glob fetched")
	return out, nil
}

// walk visits every file and symlink below dir (relative to the source directory).
// Submodules are descended into only when following indirections.
func (s *Session) walk(ctx context.Context, dir string, opts []CallOption, visit func(rel string, entry remote.DirectoryEntry) error) error {
	co := applyCallOptions(opts)

	entries, err := s.ListDirectory(ctx, dir, opts...)
	if err != nil {
		return err
	}

	for _, e := range entries {
		rel := path.Join(dir, e.Name)
		switch e.Kind {
		case remote.KindDir:
			if err := s.walk(ctx, rel, opts, visit); err != nil {
				return err
			}
		case remote.KindSubmodule:
			if !co.follow {
				continue
			}
			if err := s.walk(ctx, rel, opts, visit); err != nil {
				return err
			}
		default:
			if err := visit(rel, e); err != nil {
				return err
			}
		}
	}
	return nil
}
