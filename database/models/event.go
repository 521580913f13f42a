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

import (
	"time"

	"github.com/blinklabs-io/vaultledger/database/types"
)

// Event is the envelope written for every chain event, whether or not a
// handler exists for it
type Event struct {
	Timestamp   time.Time
	Data        types.KV
	ExtrinsicID *string `gorm:"index;size:255"`
	ID          string  `gorm:"primaryKey;size:255"`
	BlockID     string  `gorm:"index;size:255"`
	Section     string  `gorm:"index:idx_event_key"`
	Method      string  `gorm:"index:idx_event_key"`
	BlockNumber uint64  `gorm:"index"`
	Index       uint32
}

func (e *Event) EntityID() string {
	return e.ID
}

func (Event) TableName() string {
	return "event"
}

// Applied reports whether the envelope was fully written by an earlier run
func (e *Event) Applied() bool {
	return e.Section != "" && e.Method != ""
}
