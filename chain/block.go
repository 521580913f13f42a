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

// Package chain describes the block, extrinsic and event descriptors that
// feed the ledger, and the typed decoding of their arguments
package chain

import (
	"time"
)

const (
	systemSection          = "system"
	extrinsicSuccessMethod = "ExtrinsicSuccess"
	extrinsicFailedMethod  = "ExtrinsicFailed"
	timestampSection       = "timestamp"
	timestampSetMethod     = "set"
)

type Block struct {
	Hash           string      `json:"hash"`
	ParentHash     string      `json:"parentHash"`
	StateRoot      string      `json:"stateRoot"`
	ExtrinsicsRoot string      `json:"extrinsicsRoot"`
	Extrinsics     []Extrinsic `json:"extrinsics"`
	Events         []Event     `json:"events"`
	Number         uint64      `json:"number"`
	SpecVersion    uint32      `json:"specVersion"`
}

type Extrinsic struct {
	Nonce     *uint64 `json:"nonce,omitempty"`
	Signature *string `json:"signature,omitempty"`
	Tip       *string `json:"tip,omitempty"`
	Hash      string  `json:"hash"`
	Signer    string  `json:"signer,omitempty"`
	Section   string  `json:"section"`
	Method    string  `json:"method"`
	Args      []Value `json:"args"`
	// ArgNames is the call's argument definition, in argument order
	ArgNames []string `json:"argNames,omitempty"`
	IsSigned bool     `json:"isSigned"`
}

type Event struct {
	// ExtrinsicIndex links the event to the extrinsic that triggered it
	ExtrinsicIndex *uint32  `json:"extrinsicIndex,omitempty"`
	Section        string   `json:"section"`
	Method         string   `json:"method"`
	Data           []Value  `json:"data"`
	Names          []string `json:"names,omitempty"`
	Index          uint32   `json:"index"`
}

// Timestamp derives the block time from its timestamp.set inherent.
// The zero time is returned when the block carries none.
func (b *Block) Timestamp() time.Time {
	for i := range b.Extrinsics {
		ext := &b.Extrinsics[i]
		if ext.Section != timestampSection || ext.Method != timestampSetMethod {
			continue
		}
		if len(ext.Args) == 0 {
			continue
		}
		ms, err := ext.Args[0].Moment()
		if err != nil {
			continue
		}
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}

// ExtrinsicSucceeded reports whether the extrinsic at idx emitted a
// system success event
func (b *Block) ExtrinsicSucceeded(idx int) bool {
	for i := range b.Events {
		evt := &b.Events[i]
		if evt.ExtrinsicIndex == nil || int(*evt.ExtrinsicIndex) != idx {
			continue
		}
		if evt.Section != systemSection {
			continue
		}
		switch evt.Method {
		case extrinsicSuccessMethod:
			return true
		case extrinsicFailedMethod:
			return false
		}
	}
	return false
}

// ExtrinsicFor returns the extrinsic that triggered evt, if any
func (b *Block) ExtrinsicFor(evt *Event) *Extrinsic {
	if evt.ExtrinsicIndex == nil {
		return nil
	}
	idx := int(*evt.ExtrinsicIndex)
	if idx < 0 || idx >= len(b.Extrinsics) {
		return nil
	}
	return &b.Extrinsics[idx]
}
