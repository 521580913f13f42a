// Copyright 2025 Blink Labs Software
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
	"log/slog"
	"os"

	"github.com/blinklabs-io/vaultledger/internal/config"
	"github.com/blinklabs-io/vaultledger/internal/node"
	"github.com/spf13/cobra"
)

func ingestRun(_ *cobra.Command, args []string, cfg *config.Config) {
	logger := commonRun()
	feedPath := ""
	if len(args) > 0 {
		feedPath = args[0]
	}
	if err := node.Run(cfg, logger, feedPath); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func ingestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [feed]",
		Short: "Process a block feed, serving metrics while running",
		Long: "Process a JSON-lines block feed (optionally zstd compressed with a .zst suffix).\n" +
			"The feed path defaults to the feedPath config value.",
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ingestRun(cmd, args, configFromCmd(cmd))
		},
	}
	return cmd
}
