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

type Block struct {
	Timestamp     time.Time
	ID            string `gorm:"primaryKey;size:255"`
	ParentHash    string `gorm:"size:255"`
	StateRoot     string `gorm:"size:255"`
	ExtrinsicRoot string `gorm:"size:255"`
	Number        uint64 `gorm:"index"`
	SpecVersion   uint32
	// Populated is set once the header fields have been written
	Populated bool
}

func (b *Block) EntityID() string {
	return b.ID
}

func (Block) TableName() string {
	return "block"
}
