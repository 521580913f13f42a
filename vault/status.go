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

package vault

import "github.com/blinklabs-io/vaultledger/database/models"

type Status int

const (
	StatusUnregistered Status = iota
	StatusActive
	StatusBanned
)

func (s Status) String() string {
	switch s {
	case StatusUnregistered:
		return "unregistered"
	case StatusActive:
		return "active"
	case StatusBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// StatusOf derives the state of a vault at the given chain height. A vault
// stays banned up to and including its release height; there is no unban
// event.
func StatusOf(v *models.Vault, height uint64) Status {
	if v == nil {
		return StatusUnregistered
	}
	if v.BannedUntilBlock != nil && *v.BannedUntilBlock >= height {
		return StatusBanned
	}
	return StatusActive
}
