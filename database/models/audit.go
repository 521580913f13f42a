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

// Audit rows share the id of the event that produced them

type TokenIssueEvent struct {
	Timestamp   time.Time
	ID          string        `gorm:"primaryKey;size:255"`
	VaultID     string        `gorm:"index;size:255"`
	Amount      types.Uint128 `gorm:"column:amount"`
	BlockNumber uint64
}

func (e *TokenIssueEvent) EntityID() string {
	return e.ID
}

func (TokenIssueEvent) TableName() string {
	return "token_issue_event"
}

type TokenRedeemEvent struct {
	Timestamp   time.Time
	ID          string        `gorm:"primaryKey;size:255"`
	VaultID     string        `gorm:"index;size:255"`
	Amount      types.Uint128 `gorm:"column:amount"`
	BlockNumber uint64
}

func (e *TokenRedeemEvent) EntityID() string {
	return e.ID
}

func (TokenRedeemEvent) TableName() string {
	return "token_redeem_event"
}

type DepositCollateralEvent struct {
	Timestamp       time.Time
	ID              string        `gorm:"primaryKey;size:255"`
	VaultID         string        `gorm:"index;size:255"`
	Amount          types.Uint128 `gorm:"column:amount"`
	TotalCollateral types.Uint128 `gorm:"column:total_colateral"`
	BlockNumber     uint64
}

func (e *DepositCollateralEvent) EntityID() string {
	return e.ID
}

func (DepositCollateralEvent) TableName() string {
	return "deposit_collateral_event"
}

type WithdrawCollateralEvent struct {
	Timestamp       time.Time
	ID              string        `gorm:"primaryKey;size:255"`
	VaultID         string        `gorm:"index;size:255"`
	Amount          types.Uint128 `gorm:"column:amount"`
	TotalCollateral types.Uint128 `gorm:"column:total_colateral"`
	BlockNumber     uint64
}

func (e *WithdrawCollateralEvent) EntityID() string {
	return e.ID
}

func (WithdrawCollateralEvent) TableName() string {
	return "withdraw_collateral_event"
}
