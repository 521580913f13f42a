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

package testutil

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/blinklabs-io/vaultledger/chain"
)

// AccountID returns a deterministic 32-byte account id made of b repeated
func AccountID(b byte) string {
	return "0x" + strings.Repeat(fmt.Sprintf("%02x", b), 32)
}

func rawJSON(v any) json.RawMessage {
	buf, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return buf
}

// Account builds an AccountId argument
func Account(id string) chain.Value {
	return chain.Value{Type: "AccountId", Raw: rawJSON(id)}
}

// Amount builds a balance argument of the given runtime type, encoded as a decimal string
func Amount(typeName string, amount string) chain.Value {
	return chain.Value{Type: typeName, Raw: rawJSON(amount)}
}

// Number builds a numeric argument of the given runtime type
func Number(typeName string, n uint64) chain.Value {
	return chain.Value{Type: typeName, Raw: rawJSON(n)}
}

// BtcAddress builds a BtcAddress argument
func BtcAddress(hexAddr string) chain.Value {
	return chain.Value{Type: "BtcAddress", Raw: rawJSON(hexAddr)}
}

// OracleEntry is one (key, raw fixed point) pair of a feed
type OracleEntry struct {
	Key any
	Raw string
}

// ExchangeRate returns a feed entry for the currency key
func ExchangeRate(currency string, raw string) OracleEntry {
	return OracleEntry{
		Key: map[string]any{chain.OracleKeyExchangeRate: currency},
		Raw: raw,
	}
}

// FeeEstimation returns a fee estimation feed entry
func FeeEstimation(raw string) OracleEntry {
	return OracleEntry{Key: chain.OracleKeyFeeEstimation, Raw: raw}
}

// OracleValues builds a Vec<(OracleKey,UnsignedFixedPoint)> argument
func OracleValues(entries ...OracleEntry) chain.Value {
	pairs := make([][]any, 0, len(entries))
	for _, e := range entries {
		pairs = append(pairs, []any{e.Key, e.Raw})
	}
	return chain.Value{
		Type: "Vec<(OracleKey,UnsignedFixedPoint)>",
		Raw:  rawJSON(pairs),
	}
}

// NewBlock returns a block whose first extrinsic is the timestamp inherent
func NewBlock(number uint64, ts time.Time) *chain.Block {
	blk := &chain.Block{
		Hash:           fmt.Sprintf("0x%064x", number),
		ParentHash:     fmt.Sprintf("0x%064x", number-1),
		StateRoot:      fmt.Sprintf("0x%064x", number+1_000_000),
		ExtrinsicsRoot: fmt.Sprintf("0x%064x", number+2_000_000),
		Number:         number,
		SpecVersion:    1,
	}
	blk.Extrinsics = append(blk.Extrinsics, chain.Extrinsic{
		Hash:     fmt.Sprintf("0x%064x", number+3_000_000),
		Section:  "timestamp",
		Method:   "set",
		Args:     []chain.Value{Number("Compact<Moment>", uint64(ts.UnixMilli()))},
		ArgNames: []string{"now"},
	})
	idx := uint32(0)
	AddEvent(blk, &idx, "system", "ExtrinsicSuccess")
	return blk
}

// AddExtrinsic appends a signed extrinsic with a success event and returns its index
func AddExtrinsic(
	blk *chain.Block,
	signer string,
	section string,
	method string,
	success bool,
) uint32 {
	idx := uint32(len(blk.Extrinsics)) //nolint:gosec
	nonce := uint64(idx)
	blk.Extrinsics = append(blk.Extrinsics, chain.Extrinsic{
		Hash:     fmt.Sprintf("0x%064x", blk.Number*1000+uint64(idx)+4_000_000),
		Signer:   signer,
		Section:  section,
		Method:   method,
		IsSigned: true,
		Nonce:    &nonce,
	})
	result := "ExtrinsicFailed"
	if success {
		result = "ExtrinsicSuccess"
	}
	AddEvent(blk, &idx, "system", result)
	return idx
}

// AddEvent appends an event with the next index and returns it
func AddEvent(
	blk *chain.Block,
	extrinsicIndex *uint32,
	section string,
	method string,
	data ...chain.Value,
) *chain.Event {
	blk.Events = append(blk.Events, chain.Event{
		Index:          uint32(len(blk.Events)), //nolint:gosec
		Section:        section,
		Method:         method,
		Data:           data,
		ExtrinsicIndex: extrinsicIndex,
	})
	return &blk.Events[len(blk.Events)-1]
}
