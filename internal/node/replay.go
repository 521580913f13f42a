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

package node

import (
	"context"
	"errors"
	"log/slog"

	"github.com/blinklabs-io/vaultledger/internal/config"
)

// Replay re-applies every block in the archive
func Replay(cfg *config.Config, logger *slog.Logger) error {
	if cfg.BlobPlugin == "" {
		return errors.New("replay requires a blob plugin for the block archive")
	}
	idx, err := NewIndexer(cfg, logger, nil)
	if err != nil {
		return err
	}
	count, err := idx.Replay(context.Background())
	if err != nil {
		return errors.Join(err, idx.Stop())
	}
	logger.Info("replayed archived blocks", "component", "node", "count", count)
	return idx.Stop()
}
