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
	"github.com/shopspring/decimal"
)

type OracleExchangeRate struct {
	Timestamp   time.Time
	ID          string `gorm:"primaryKey;size:255"`
	Key         string `gorm:"index;size:255"`
	Origin      string `gorm:"index;size:255"`
	Value       decimal.Decimal
	RawValue    types.Uint128
	BlockNumber uint64 `gorm:"index"`
}

func (r *OracleExchangeRate) EntityID() string {
	return r.ID
}

func (OracleExchangeRate) TableName() string {
	return "oracle_exchange_rate"
}
