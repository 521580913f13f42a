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

// Entity is implemented by every persisted record keyed by a string id
type Entity interface {
	EntityID() string
	TableName() string
}

// MigrateModels contains a list of model objects that should have DB migrations applied
var MigrateModels = []any{
	&Block{},
	&BTCAddress{},
	&Checkpoint{},
	&CommitTimestamp{},
	&DepositCollateralEvent{},
	&Event{},
	&Extrinsic{},
	&OracleExchangeRate{},
	&TokenIssueEvent{},
	&TokenRedeemEvent{},
	&Vault{},
	&WithdrawCollateralEvent{},
}

// CommitTimestamp mirrors the blob store commit marker so that a crash
// between the two commits can be detected on startup
type CommitTimestamp struct {
	ID        uint `gorm:"primarykey"`
	Timestamp int64
}

func (CommitTimestamp) TableName() string {
	return "commit_timestamp"
}
