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

package event

import "time"

const (
	// BlockProcessedEventType is published after a block is committed
	BlockProcessedEventType = EventType("ledger.block_processed")
	// VaultUpdatedEventType is published once per vault changed by a committed block
	VaultUpdatedEventType = EventType("ledger.vault_updated")
)

type BlockProcessedEvent struct {
	BlockTime   time.Time
	BlockHash   string
	BlockNumber uint64
	Dispatched  int
	Ignored     int
	Replayed    int
}

type VaultUpdatedEvent struct {
	VaultID     string
	BlockHash   string
	BlockNumber uint64
}
