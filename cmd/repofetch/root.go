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

package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/walteh/repofetch/cmd/repofetch/commands"
	"github.com/walteh/repofetch/cmd/repofetch/opts"
	"github.com/walteh/repofetch/pkg/config"
	"github.com/walteh/repofetch/pkg/fetcher"
	"github.com/walteh/repofetch/pkg/log"
	"gitlab.com/tozd/go/errors"

	_ "github.com/walteh/repofetch/pkg/remote/providers"
)

type rootFlags struct {
	configFile string
	debug      bool
	follow     bool
	source     config.SourceConfig
}

func newRootCommand(stdout, stderr io.Writer, sessionOpts ...fetcher.Option) *cobra.Command {
	flags := &rootFlags{}
	ro := &opts.RootOpts{Stdout: stdout, SessionOptions: sessionOpts}

	rootCmd := &cobra.Command{
		Use:   "repofetch",
		Short: "Read files from remote git repositories without cloning them",
		Long: `repofetch resolves a repository on GitHub, GitLab, Bitbucket, Bitbucket Server,
Azure Repos or CodeCommit to a commit and reads directories and files at that commit,
following submodules and symlinks on request.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(flags.debug)

			level := zerolog.WarnLevel
			if flags.debug {
				level = zerolog.DebugLevel
			}
			ctx := log.NewContext(cmd.Context(), log.New(stderr, level))
			cmd.SetContext(ctx)

			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			ro.Config = cfg
			ro.Debug = flags.debug
			ro.Follow = flags.follow
			return nil
		},
	}

	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	addRootFlags(rootCmd, flags)

	rootCmd.AddCommand(
		commands.NewCommitCmd(ro),
		commands.NewLsCmd(ro),
		commands.NewCatCmd(ro),
		commands.NewGlobCmd(ro),
		commands.NewURLCmd(ro),
	)

	return rootCmd
}

func addRootFlags(cmd *cobra.Command, f *rootFlags) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configFile, "config", "c", "", "config file path (.json, .yaml, .yml or .hcl)")
	pf.BoolVarP(&f.debug, "debug", "d", false, "enable debug logging")
	pf.BoolVar(&f.follow, "follow", false, "follow submodules when a path is not found")
	pf.StringVarP(&f.source.URL, "source", "s", "", "repository url")
	pf.StringVar(&f.source.Provider, "provider", "", "provider name (github, gitlab, bitbucket, bitbucket_server, azure, codecommit)")
	pf.StringVar(&f.source.Repo, "repo", "", "repository id, e.g. org/name")
	pf.StringVar(&f.source.Branch, "branch", "", "branch to resolve instead of the default branch")
	pf.StringVar(&f.source.Commit, "commit", "", "commit to read at, skips branch resolution")
	pf.StringVar(&f.source.Directory, "directory", "", "base directory for relative paths")
	pf.StringVar(&f.source.Hostname, "hostname", "", "provider hostname, for self-hosted instances")
	pf.StringVar(&f.source.APIEndpoint, "api-endpoint", "", "provider api endpoint, for self-hosted instances")
}

// loadConfig reads the config file if one is given and lays the source flags over it.
func loadConfig(cmd *cobra.Command, f *rootFlags) (*config.Config, error) {
	cfg := &config.Config{}
	if f.configFile != "" {
		loaded, err := config.LoadConfig(cmd.Context(), f.configFile)
		if err != nil {
			return nil, errors.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	pf := cmd.Flags()
	s := &cfg.Source
	if pf.Changed("source") {
		s.URL, s.Provider, s.Repo = f.source.URL, "", ""
	}
	if pf.Changed("provider") || pf.Changed("repo") {
		s.URL = ""
		if pf.Changed("provider") {
			s.Provider = f.source.Provider
		}
		if pf.Changed("repo") {
			s.Repo = f.source.Repo
		}
	}

	overrides := []struct {
		flag  string
		dst   *string
		value string
	}{
		{"branch", &s.Branch, f.source.Branch},
		{"commit", &s.Commit, f.source.Commit},
		{"directory", &s.Directory, f.source.Directory},
		{"hostname", &s.Hostname, f.source.Hostname},
		{"api-endpoint", &s.APIEndpoint, f.source.APIEndpoint},
	}
	for _, o := range overrides {
		if pf.Changed(o.flag) {
			*o.dst = o.value
		}
	}

	return cfg, nil
}

func setupLogging(debug bool) {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	zlog.Logger = l
	zerolog.DefaultContextLogger = &l
}
