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

package models

import "time"

const IngestCheckpointID = "ingest"

// Checkpoint records the last block whose writes were fully committed.
// It is saved in the same transaction as the block it names.
type Checkpoint struct {
	UpdatedAt   time.Time
	ID          string `gorm:"primaryKey;size:64"`
	BlockHash   string `gorm:"size:255"`
	BlockNumber uint64
}

func (c *Checkpoint) EntityID() string {
	return c.ID
}

func (Checkpoint) TableName() string {
	return "checkpoint"
}
