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
	"github.com/spf13/cobra"
	"github.com/walteh/repofetch/cmd/repofetch/opts"
	"github.com/walteh/repofetch/pkg/log"
	"gitlab.com/tozd/go/errors"
)

func NewCatCmd(o *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat <path>",
		Short: "Write a file at the pinned commit to stdout",
		Long: `Cat reads one file relative to the configured directory. With --follow, paths
inside submodules are resolved against the submodule repository. Symlink targets are
reported on stderr, and --debug also prints every indirection the session discovered.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := log.FromContext(ctx)

			session, err := o.Session()
			if err != nil {
				return err
			}

			file, err := session.FetchFile(ctx, args[0], o.CallOptions()...)
			if err != nil {
				return errors.Errorf("reading %s: %w", args[0], err)
			}

			if file.SymlinkTarget != "" {
				logger.Infof("%s is a symlink to /%s", file.Path, file.SymlinkTarget)
			}

			if o.Debug {
				for _, ind := range session.Indirections() {
					target := ind.Target.String()
					if ind.Path != "" {
						target += " /" + ind.Path
					}
					logger.LogFetchOperation(ctx, log.FetchOperation{
						Path:   "/" + ind.ForPath,
						Kind:   string(ind.Kind),
						Target: target,
					})
				}
			}

			if _, err := o.Stdout.Write(file.Content); err != nil {
				return errors.Errorf("writing output: %w", err)
			}
			return nil
		},
	}

	return cmd
}
