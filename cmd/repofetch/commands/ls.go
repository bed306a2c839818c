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
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/walteh/repofetch/cmd/repofetch/opts"
	"github.com/walteh/repofetch/pkg/remote"
	"gitlab.com/tozd/go/errors"
)

func NewLsCmd(o *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [dir]",
		Short: "List a directory at the pinned commit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}

			session, err := o.Session()
			if err != nil {
				return err
			}

			entries, err := session.ListDirectory(ctx, dir, o.CallOptions()...)
			if err != nil {
				return errors.Errorf("listing %s: %w", dir, err)
			}

			data := [][]string{{"NAME", "KIND", "SIZE", "SHA"}}
			for _, e := range entries {
				size := "-"
				if e.Kind == remote.KindFile {
					size = strconv.FormatInt(e.Size, 10)
				}
				data = append(data, []string{e.Name, string(e.Kind), size, shortSHA(e.SHA)})
			}

			return pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(o.Stdout).Render()
		},
	}

	return cmd
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
