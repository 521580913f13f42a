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

package plugin

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type PluginType int

const (
	PluginTypeNone PluginType = iota
	PluginTypeMetadata
	PluginTypeBlob
)

func PluginTypeName(pluginType PluginType) string {
	switch pluginType {
	case PluginTypeMetadata:
		return "metadata"
	case PluginTypeBlob:
		return "blob"
	default:
		return ""
	}
}

type Plugin interface {
	Start() error
	Stop() error
}

// Options are passed to a plugin constructor
type Options struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	DataDir      string
	DSN          string
}

type PluginEntry struct {
	NewFunc     func(Options) (Plugin, error)
	Name        string
	Description string
	Type        PluginType
}

var (
	pluginEntries []PluginEntry
	pluginMutex   sync.RWMutex
)

// Register adds a plugin to the registry. It is intended to be called from init()
func Register(entry PluginEntry) {
	pluginMutex.Lock()
	defer pluginMutex.Unlock()
	for _, p := range pluginEntries {
		if p.Type == entry.Type && p.Name == entry.Name {
			panic(
				fmt.Sprintf(
					"duplicate %s plugin registration: %s",
					PluginTypeName(entry.Type),
					entry.Name,
				),
			)
		}
	}
	pluginEntries = append(pluginEntries, entry)
}

// GetPlugins returns the registered plugins of the given type sorted by name
func GetPlugins(pluginType PluginType) []PluginEntry {
	pluginMutex.RLock()
	defer pluginMutex.RUnlock()
	ret := []PluginEntry{}
	for _, p := range pluginEntries {
		if p.Type == pluginType {
			ret = append(ret, p)
		}
	}
	slices.SortFunc(ret, func(a, b PluginEntry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return ret
}

func getPluginEntry(pluginType PluginType, pluginName string) *PluginEntry {
	pluginMutex.RLock()
	defer pluginMutex.RUnlock()
	for _, p := range pluginEntries {
		if p.Type == pluginType && p.Name == pluginName {
			return &p
		}
	}
	return nil
}

// StartPlugin builds the named plugin from the registry and starts it
func StartPlugin(
	pluginType PluginType,
	pluginName string,
	opts Options,
) (Plugin, error) {
	entry := getPluginEntry(pluginType, pluginName)
	if entry == nil {
		return nil, fmt.Errorf(
			"%w: %s plugin '%s' not found",
			ErrUnknownPlugin,
			PluginTypeName(pluginType),
			pluginName,
		)
	}
	p, err := entry.NewFunc(opts)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to create %s plugin '%s': %w",
			PluginTypeName(pluginType),
			pluginName,
			err,
		)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf(
			"failed to start %s plugin '%s': %w",
			PluginTypeName(pluginType),
			pluginName,
			err,
		)
	}
	return p, nil
}
