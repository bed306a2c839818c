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
)

func NewURLCmd(o *opts.RootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "url",
		Short: "Print the browser url of the configured source and directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := o.Source()
			if err != nil {
				return err
			}

			u, err := src.URLWithDirectory()
			if err != nil {
				return err
			}

			fmt.Fprintln(o.Stdout, u)
			return nil
		},
	}
}
