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

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blinklabs-io/vaultledger/database/plugin"
	_ "github.com/blinklabs-io/vaultledger/database/plugin/blob"
	_ "github.com/blinklabs-io/vaultledger/database/plugin/metadata"
	"github.com/blinklabs-io/vaultledger/vault"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "vaultledger.config"

const (
	DefaultShutdownTimeout = "30s"
	DefaultBlobPlugin      = "badger"
	DefaultMetadataPlugin  = "sqlite"
	EnvPrefix              = "vaultledger"
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type tempConfig struct {
	Config   yaml.Node       `yaml:"config,omitempty"`
	Database *databaseConfig `yaml:"database,omitempty"`
}

type databaseConfig struct {
	Blob     *pluginConfig `yaml:"blob,omitempty"`
	Metadata *pluginConfig `yaml:"metadata,omitempty"`
}

type pluginConfig struct {
	Plugin string `yaml:"plugin"`
	Dsn    string `yaml:"dsn,omitempty"`
}

type Config struct {
	DatabasePath   string `yaml:"databasePath"    split_words:"true"`
	MetadataPlugin string `yaml:"metadataPlugin"  split_words:"true"`
	MetadataDsn    string `yaml:"metadataDsn"     split_words:"true"`
	BlobPlugin     string `yaml:"blobPlugin"      split_words:"true"`
	// BlobDsn locates remote archives, for example gcs://bucket/prefix
	BlobDsn         string `yaml:"blobDsn"         split_words:"true"`
	FeedPath        string `yaml:"feedPath"        split_words:"true"`
	UnderflowPolicy string `yaml:"underflowPolicy" split_words:"true"`
	BindAddr        string `yaml:"bindAddr"        split_words:"true"`
	ShutdownTimeout string `yaml:"shutdownTimeout" split_words:"true"`
	// DisjointWriteLimit bounds the parallel writes of a single event
	DisjointWriteLimit int  `yaml:"disjointWriteLimit" split_words:"true"`
	MetricsPort        uint `yaml:"metricsPort"        split_words:"true"`
	// Autocommit disables the per-block transaction
	Autocommit    bool `yaml:"autocommit"`
	Tracing       bool `yaml:"tracing"`
	TracingStdout bool `yaml:"tracingStdout" split_words:"true"`
}

// ShutdownTimeoutDuration parses ShutdownTimeout
func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	if c.ShutdownTimeout == "" {
		return time.ParseDuration(DefaultShutdownTimeout)
	}
	return time.ParseDuration(c.ShutdownTimeout)
}

func defaultConfig() Config {
	return Config{
		DatabasePath:       ".vaultledger",
		MetadataPlugin:     DefaultMetadataPlugin,
		BlobPlugin:         DefaultBlobPlugin,
		UnderflowPolicy:    string(vault.UnderflowFault),
		BindAddr:           "0.0.0.0",
		MetricsPort:        12799,
		ShutdownTimeout:    DefaultShutdownTimeout,
		DisjointWriteLimit: 8,
	}
}

var globalConfig = func() *Config {
	cfg := defaultConfig()
	return &cfg
}()

func findConfigFile() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(homeDir, ".vaultledger", "vaultledger.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return userPath
		}
	}
	systemPath := "/etc/vaultledger/vaultledger.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}
	return ""
}

// LoadConfig builds the configuration from the defaults, the YAML file, and
// VAULTLEDGER_* environment variables, in that order of precedence
func LoadConfig(configFile string) (*Config, error) {
	cfg := defaultConfig()
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		var tempCfg tempConfig
		if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
		if tempCfg.Config.Kind != 0 {
			// Overlay the config section onto the defaults
			if err := tempCfg.Config.Decode(&cfg); err != nil {
				return nil, fmt.Errorf("error parsing config section: %w", err)
			}
		} else {
			// The whole file is the config section
			if err := yaml.Unmarshal(buf, &cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
		if db := tempCfg.Database; db != nil {
			if db.Metadata != nil {
				if db.Metadata.Plugin != "" {
					cfg.MetadataPlugin = db.Metadata.Plugin
				}
				if db.Metadata.Dsn != "" {
					cfg.MetadataDsn = db.Metadata.Dsn
				}
			}
			if db.Blob != nil {
				cfg.BlobPlugin = db.Blob.Plugin
				if db.Blob.Dsn != "" {
					cfg.BlobDsn = db.Blob.Dsn
				}
			}
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	globalConfig = &cfg
	return globalConfig, nil
}

func hasPlugin(pluginType plugin.PluginType, name string) bool {
	for _, entry := range plugin.GetPlugins(pluginType) {
		if entry.Name == name {
			return true
		}
	}
	return false
}

// Validate checks plugin names and value ranges
func (c *Config) Validate() error {
	var errs []error
	if !hasPlugin(plugin.PluginTypeMetadata, c.MetadataPlugin) {
		errs = append(
			errs,
			fmt.Errorf("%w: metadata plugin %q", plugin.ErrUnknownPlugin, c.MetadataPlugin),
		)
	}
	if c.BlobPlugin != "" && !hasPlugin(plugin.PluginTypeBlob, c.BlobPlugin) {
		errs = append(
			errs,
			fmt.Errorf("%w: blob plugin %q", plugin.ErrUnknownPlugin, c.BlobPlugin),
		)
	}
	if _, err := vault.ParseUnderflowPolicy(c.UnderflowPolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ShutdownTimeoutDuration(); err != nil {
		errs = append(errs, fmt.Errorf("invalid shutdownTimeout: %w", err))
	}
	if c.DisjointWriteLimit < 0 {
		errs = append(
			errs,
			fmt.Errorf("invalid disjointWriteLimit: %d", c.DisjointWriteLimit),
		)
	}
	if c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid metricsPort: %d", c.MetricsPort))
	}
	return errors.Join(errs...)
}

func GetConfig() *Config {
	return globalConfig
}
