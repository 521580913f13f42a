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

type Vault struct {
	RegisterDate       *time.Time
	LastEventAt        *time.Time
	BannedUntilBlock   *uint64
	ID                 string        `gorm:"primaryKey;size:255"`
	CollateralAmount   types.Uint128 `gorm:"column:colateral_amount"`
	IssuedTokens       types.Uint128
	ToBeIssuedTokens   types.Uint128
	ToBeRedeemedTokens types.Uint128
}

func (v *Vault) EntityID() string {
	return v.ID
}

func (Vault) TableName() string {
	return "vault"
}

type BTCAddress struct {
	Timestamp   time.Time
	ID          string `gorm:"primaryKey;size:255"`
	VaultID     string `gorm:"index;size:255"`
	BlockNumber uint64
}

func (a *BTCAddress) EntityID() string {
	return a.ID
}

func (BTCAddress) TableName() string {
	return "btc_address"
}
