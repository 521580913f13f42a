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

package chain

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/gaze-network/uint128"
)

const accountIDLength = 32

// Oracle key kinds
const (
	OracleKeyExchangeRate  = "ExchangeRate"
	OracleKeyFeeEstimation = "FeeEstimation"
)

// Value is a typed argument as emitted by the runtime. Type is the runtime
// type name and Raw its JSON rendering.
type Value struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"value"`
}

// OracleValue is one (key, fixed point) entry of an oracle feed
type OracleValue struct {
	Raw *big.Int
	// Kind is ExchangeRate or FeeEstimation
	Kind string
	// Key identifies the fed datum, for example the currency of an exchange rate
	Key string
}

func (v Value) str() (string, error) {
	var s string
	if err := json.Unmarshal(v.Raw, &s); err != nil {
		return "", fmt.Errorf("expected string value: %w", err)
	}
	return s, nil
}

func normalizeHex(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return s
}

// AccountID returns the account as 0x-prefixed lowercase hex of its 32 bytes
func (v Value) AccountID() (string, error) {
	s, err := v.str()
	if err != nil {
		return "", err
	}
	return ParseAccountID(s)
}

// ParseAccountID normalizes a hex account id, with or without the 0x
// prefix, into the form used as the vault id
func ParseAccountID(s string) (string, error) {
	s = normalizeHex(s)
	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return "", fmt.Errorf("invalid account id %q: %w", s, err)
	}
	if len(raw) != accountIDLength {
		return "", fmt.Errorf(
			"invalid account id length %d, expected %d",
			len(raw),
			accountIDLength,
		)
	}
	return s, nil
}

func parseBigInt(raw json.RawMessage) (*big.Int, error) {
	raw = bytes.TrimSpace(raw)
	text := string(raw)
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
	}
	text = strings.TrimSpace(text)
	ret := new(big.Int)
	var ok bool
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		_, ok = ret.SetString(text[2:], 16)
	} else {
		_, ok = ret.SetString(text, 10)
	}
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", text)
	}
	if ret.Sign() < 0 {
		return nil, fmt.Errorf("negative integer %q", text)
	}
	return ret, nil
}

// Amount decodes an unsigned 128-bit balance given as a decimal or 0x hex
// string, or as a JSON number
func (v Value) Amount() (uint128.Uint128, error) {
	tmp, err := parseBigInt(v.Raw)
	if err != nil {
		return uint128.Zero, err
	}
	ret, err := uint128.FromBig(tmp)
	if err != nil {
		return uint128.Zero, fmt.Errorf("amount %s: %w", tmp, err)
	}
	return ret, nil
}

// BlockNumber decodes a block height
func (v Value) BlockNumber() (uint64, error) {
	tmp, err := parseBigInt(v.Raw)
	if err != nil {
		return 0, err
	}
	if !tmp.IsUint64() {
		return 0, fmt.Errorf("block number %s out of range", tmp)
	}
	return tmp.Uint64(), nil
}

// Moment decodes a millisecond timestamp
func (v Value) Moment() (int64, error) {
	tmp, err := parseBigInt(v.Raw)
	if err != nil {
		return 0, err
	}
	if !tmp.IsInt64() {
		return 0, fmt.Errorf("moment %s out of range", tmp)
	}
	return tmp.Int64(), nil
}

// BtcAddress returns the address as lowercase 0x-prefixed hex
func (v Value) BtcAddress() (string, error) {
	s, err := v.str()
	if err != nil {
		return "", err
	}
	s = normalizeHex(s)
	if len(s) == 2 {
		return "", errors.New("empty btc address")
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return "", fmt.Errorf("invalid btc address %q: %w", s, err)
	}
	return s, nil
}

// oracleKeyString renders the payload of an oracle key variant
func oracleKeyString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// oracleKind maps a variant name onto its canonical spelling. Runtimes
// differ in the case of variant names.
func oracleKind(name string) string {
	switch strings.ToLower(name) {
	case strings.ToLower(OracleKeyExchangeRate):
		return OracleKeyExchangeRate
	case strings.ToLower(OracleKeyFeeEstimation):
		return OracleKeyFeeEstimation
	default:
		return name
	}
}

func parseOracleKey(raw json.RawMessage) (string, string, error) {
	// Unit variants may be encoded as a bare string
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return oracleKind(name), "", nil
	}
	var variant map[string]json.RawMessage
	if err := json.Unmarshal(raw, &variant); err != nil {
		return "", "", fmt.Errorf("invalid oracle key: %w", err)
	}
	if len(variant) != 1 {
		return "", "", fmt.Errorf(
			"oracle key must have exactly one variant, got %d",
			len(variant),
		)
	}
	for k, payload := range variant {
		return oracleKind(k), oracleKeyString(payload), nil
	}
	return "", "", errors.New("empty oracle key")
}

// OracleValues decodes a list of (OracleKey, UnsignedFixedPoint) pairs
func (v Value) OracleValues() ([]OracleValue, error) {
	var pairs []json.RawMessage
	if err := json.Unmarshal(v.Raw, &pairs); err != nil {
		return nil, fmt.Errorf("expected list of oracle values: %w", err)
	}
	ret := make([]OracleValue, 0, len(pairs))
	for i, pair := range pairs {
		var tuple []json.RawMessage
		if err := json.Unmarshal(pair, &tuple); err != nil {
			return nil, fmt.Errorf("oracle value %d: %w", i, err)
		}
		if len(tuple) != 2 {
			return nil, fmt.Errorf(
				"oracle value %d: expected 2 elements, got %d",
				i,
				len(tuple),
			)
		}
		kind, key, err := parseOracleKey(tuple[0])
		if err != nil {
			return nil, fmt.Errorf("oracle value %d: %w", i, err)
		}
		raw, err := parseBigInt(tuple[1])
		if err != nil {
			return nil, fmt.Errorf("oracle value %d: %w", i, err)
		}
		ret = append(ret, OracleValue{
			Kind: kind,
			Key:  key,
			Raw:  raw,
		})
	}
	return ret, nil
}

// Plain decodes the raw JSON into generic Go values, keeping numbers exact
func (v Value) Plain() any {
	if len(v.Raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(v.Raw))
	dec.UseNumber()
	var ret any
	if err := dec.Decode(&ret); err != nil {
		return string(v.Raw)
	}
	return ret
}

// KVData flattens values into a map keyed by argument name, or by position
// when no name is known
func KVData(values []Value, names []string) map[string]any {
	ret := make(map[string]any, len(values))
	for i, v := range values {
		key := strconv.Itoa(i)
		if i < len(names) && names[i] != "" {
			key = names[i]
		}
		ret[key] = v.Plain()
	}
	return ret
}
