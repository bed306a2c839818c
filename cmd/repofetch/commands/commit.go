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

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/walteh/repofetch/cmd/repofetch/opts"
	"github.com/walteh/repofetch/pkg/config"
	"github.com/walteh/repofetch/pkg/source"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

func NewCommitCmd(o *opts.RootOpts) *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "commit [url...]",
		Short: "Print the commit each source resolves to",
		Long: `Commit resolves the branch (or the default branch) of each source to a commit sha.
Without arguments the configured source is used. Each url gets its own session and
urls are resolved concurrently.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sources, err := commitSources(o, args)
			if err != nil {
				return err
			}

			commits := make([]string, len(sources))
			g, gctx := errgroup.WithContext(ctx)
			if parallel > 0 {
				g.SetLimit(parallel)
			}

			for i, src := range sources {
				i, src := i, src
				g.Go(func() error {
					session, err := o.NewSession(src)
					if err != nil {
						return errors.Errorf("opening session for %s: %w", src, err)
					}
					commit, err := session.Commit(gctx)
					if err != nil {
						return errors.Errorf("resolving %s: %w", src, err)
					}
					commits[i] = commit
					return nil
				})
			}

			if err := g.Wait(); err != nil {
				return err
			}

			for i, src := range sources {
				commit := commits[i]
				if commit == "" {
					commit = "(empty)"
				}
				fmt.Fprintf(o.Stdout, "%s\t%s\n", commit, src)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "maximum number of sources resolved at once")
	return cmd
}

func commitSources(o *opts.RootOpts, args []string) ([]source.Source, error) {
	if len(args) == 0 {
		src, err := o.Source()
		if err != nil {
			return nil, err
		}
		return []source.Source{src}, nil
	}

	out := make([]source.Source, 0, len(args))
	for _, arg := range args {
		src, err := config.SourceConfig{URL: arg}.Build()
		if err != nil {
			return nil, errors.Errorf("parsing %q: %w", arg, err)
		}
		out = append(out, src)
	}
	return out, nil
}
