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
	"github.com/walteh/repofetch/pkg/log"
	"gitlab.com/tozd/go/errors"
)

func NewGlobCmd(o *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "glob <pattern>",
		Short: "Fetch every file matching a pattern",
		Long: `Glob walks the listings below the pattern's static prefix and fetches each file
that matches. Patterns follow doublestar syntax, so ** crosses directories.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := log.FromContext(ctx)

			session, err := o.Session()
			if err != nil {
				return err
			}

			commit, err := session.Commit(ctx)
			if err != nil {
				return err
			}
			logger.StartSourceOperation(ctx, log.SourceOperation{Source: session.Source().String(), Commit: commit})
			defer logger.EndSourceOperation(ctx)

			files, err := session.FetchGlob(ctx, args[0], o.CallOptions()...)
			if err != nil {
				return errors.Errorf("fetching %s: %w", args[0], err)
			}

			for _, f := range files {
				fmt.Fprintf(o.Stdout, "%s\t%d\n", f.Path, len(f.Content))
				if o.Debug {
					logger.LogFetchOperation(ctx, log.FetchOperation{
						Path:   f.Path,
						Kind:   string(f.Kind),
						Size:   int64(len(f.Content)),
						Target: f.SymlinkTarget,
					})
				}
			}
			return nil
		},
	}

	return cmd
}
