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

package types

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/gaze-network/uint128"
)

// Uint128 is an unsigned 128-bit integer persisted as decimal text so that
// every supported metadata backend can hold the full range
//
//nolint:recvcheck
type Uint128 struct {
	uint128.Uint128
}

func NewUint128(v uint128.Uint128) Uint128 {
	return Uint128{Uint128: v}
}

func Uint128From64(v uint64) Uint128 {
	return Uint128{Uint128: uint128.From64(v)}
}

// ParseUint128 parses a base-10 string into a Uint128
func ParseUint128(s string) (Uint128, error) {
	tmp, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Uint128{}, fmt.Errorf("invalid uint128 value: %q", s)
	}
	v, err := uint128.FromBig(tmp)
	if err != nil {
		return Uint128{}, fmt.Errorf("uint128 value out of range: %s: %w", s, err)
	}
	return Uint128{Uint128: v}, nil
}

func (u Uint128) Value() (driver.Value, error) {
	return u.String(), nil
}

func (u *Uint128) Scan(val any) error {
	switch v := val.(type) {
	case string:
		tmp, err := ParseUint128(v)
		if err != nil {
			return err
		}
		*u = tmp
	case []byte:
		tmp, err := ParseUint128(string(v))
		if err != nil {
			return err
		}
		*u = tmp
	case int64:
		if v < 0 {
			return fmt.Errorf("negative value for uint128: %d", v)
		}
		*u = Uint128From64(uint64(v))
	case nil:
		*u = Uint128{}
	default:
		return fmt.Errorf(
			"value was not expected type, wanted string, got %T",
			val,
		)
	}
	return nil
}

func (Uint128) GormDataType() string {
	return "string"
}

func (u Uint128) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *Uint128) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	tmp, err := ParseUint128(s)
	if err != nil {
		return err
	}
	*u = tmp
	return nil
}

// KV is a flattened argument map persisted as a JSON document
//
//nolint:recvcheck
type KV map[string]any

func (k KV) Value() (driver.Value, error) {
	if k == nil {
		return "{}", nil
	}
	buf, err := json.Marshal(map[string]any(k))
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

func (k *KV) Scan(val any) error {
	var buf []byte
	switch v := val.(type) {
	case string:
		buf = []byte(v)
	case []byte:
		buf = v
	case nil:
		*k = nil
		return nil
	default:
		return fmt.Errorf(
			"value was not expected type, wanted string, got %T",
			val,
		)
	}
	// Keep numbers as json.Number so 128-bit amounts survive a round trip
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	tmp := map[string]any{}
	if err := dec.Decode(&tmp); err != nil {
		return err
	}
	*k = tmp
	return nil
}

func (KV) GormDataType() string {
	return "json"
}

// ErrBlobKeyNotFound is returned by blob operations when a key is missing
var ErrBlobKeyNotFound = errors.New("blob key not found")

// ErrTxnWrongType is returned when a transaction has the wrong type
var ErrTxnWrongType = errors.New("invalid transaction type")

// ErrNilTxn is returned when a nil transaction is provided where a valid transaction is required
var ErrNilTxn = errors.New("nil transaction")

// ErrNoStoreAvailable is returned when no blob or metadata store is available
var ErrNoStoreAvailable = errors.New("no store available")

// ErrBlobStoreUnavailable is returned when blob store cannot be accessed
var ErrBlobStoreUnavailable = errors.New("blob store unavailable")

// Txn is a simple transaction handle for commit/rollback only
type Txn interface {
	Commit() error
	Rollback() error
}
