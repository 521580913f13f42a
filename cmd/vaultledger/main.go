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
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/blinklabs-io/vaultledger/database/plugin"
	"github.com/blinklabs-io/vaultledger/internal/config"
	"github.com/blinklabs-io/vaultledger/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

const (
	programName = "vaultledger"
	// blobPluginNone disables the raw block archive
	blobPluginNone = "none"
)

var globalFlags struct {
	configFile string
	debug      bool
}

func commonRun() *slog.Logger {
	logLevel := slog.LevelInfo
	if globalFlags.debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource: globalFlags.debug,
			Level:     logLevel,
		}),
	)
	slog.SetDefault(logger)
	_, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		logger.Debug(fmt.Sprintf(format, v...), "component", programName)
	}))
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	logger.Info(
		"version: "+version.GetVersionString(),
		"component", programName,
	)
	return logger
}

// writePlugins prints the registered blob and metadata plugins
func writePlugins(w io.Writer) {
	sections := []struct {
		title      string
		pluginType plugin.PluginType
	}{
		{"Blob archive plugins", plugin.PluginTypeBlob},
		{"Metadata plugins", plugin.PluginTypeMetadata},
	}
	for i, section := range sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s:\n", section.title)
		for _, p := range plugin.GetPlugins(section.pluginType) {
			fmt.Fprintf(w, "  %-10s %s\n", p.Name, p.Description)
		}
	}
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available storage plugins",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			writePlugins(cmd.OutOrStdout())
		},
	}
}

func configFromCmd(cmd *cobra.Command) *config.Config {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		slog.Error("no config found in context")
		os.Exit(1)
	}
	return cfg
}

// applyFlags overlays the storage flags that were set on the command line
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("blob") {
		blobPlugin, err := flags.GetString("blob")
		if err != nil {
			return err
		}
		if blobPlugin == blobPluginNone {
			blobPlugin = ""
		}
		cfg.BlobPlugin = blobPlugin
	}
	if flags.Changed("blob-dsn") {
		dsn, err := flags.GetString("blob-dsn")
		if err != nil {
			return err
		}
		cfg.BlobDsn = dsn
	}
	if flags.Changed("metadata") {
		metadataPlugin, err := flags.GetString("metadata")
		if err != nil {
			return err
		}
		cfg.MetadataPlugin = metadataPlugin
	}
	return cfg.Validate()
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Materialize vault and oracle state from a block feed",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			ingestRun(cmd, args, configFromCmd(cmd))
		},
	}
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	flags.StringVar(&globalFlags.configFile, "config", "", "path to config file")
	flags.StringP("blob", "b", config.DefaultBlobPlugin, "block archive plugin, 'none' to disable")
	flags.String("blob-dsn", "", "block archive location for remote plugins, e.g. s3://bucket/prefix")
	flags.StringP("metadata", "m", config.DefaultMetadataPlugin, "metadata store plugin")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "list" || cmd.Name() == "version" {
			return nil
		}
		cfg, err := config.LoadConfig(globalFlags.configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := applyFlags(cmd, cfg); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	}

	rootCmd.AddCommand(
		ingestCommand(),
		replayCommand(),
		vaultCommand(),
		listCommand(),
		versionCommand(),
	)
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
