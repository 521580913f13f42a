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
	"fmt"
	"slices"
	"strings"
)

// Kind is an argument kind together with the runtime type names that encode it
type Kind struct {
	Name  string
	Types []string
}

var (
	KindAccountID = Kind{
		Name:  "AccountId",
		Types: []string{"AccountId", "AccountId32", "T::AccountId"},
	}
	KindCollateral = Kind{
		Name:  "Collateral",
		Types: []string{"Collateral", "Balance", "BalanceOf<T>", "u128"},
	}
	KindWrapped = Kind{
		Name:  "Wrapped",
		Types: []string{"Wrapped", "Balance", "BalanceOf<T>", "u128"},
	}
	KindBlockNumber = Kind{
		Name:  "BlockNumber",
		Types: []string{"BlockNumber", "T::BlockNumber", "BlockNumberFor<T>", "u32", "u64"},
	}
	KindBtcAddress = Kind{
		Name:  "BtcAddress",
		Types: []string{"BtcAddress"},
	}
	KindOracleValues = Kind{
		Name: "Vec<(OracleKey,UnsignedFixedPoint)>",
		Types: []string{
			"Vec<(OracleKey,UnsignedFixedPoint)>",
			"Vec<(OracleKey,T::UnsignedFixedPoint)>",
		},
	}
)

func normalizeTypeName(name string) string {
	return strings.Join(strings.Fields(name), "")
}

// Accepts reports whether the runtime type name encodes this kind
func (k Kind) Accepts(typeName string) bool {
	return slices.Contains(k.Types, normalizeTypeName(typeName))
}

// Schema is the ordered list of argument kinds expected for an event
type Schema []Kind

// DecodeError reports an event payload that does not match its schema.
// Position is -1 when the argument count is wrong. Err holds the value decode
// failure, if any.
type DecodeError struct {
	Err      error
	Key      string
	Want     string
	Got      string
	Position int
}

func (e *DecodeError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf(
			"decode %s: expected %s arguments, got %s",
			e.Key,
			e.Want,
			e.Got,
		)
	}
	return fmt.Sprintf(
		"decode %s: argument %d: expected %s, got %s",
		e.Key,
		e.Position,
		e.Want,
		e.Got,
	)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Validate checks the arity and argument types of values against the schema
func (s Schema) Validate(key string, values []Value) error {
	if len(values) != len(s) {
		return &DecodeError{
			Key:      key,
			Position: -1,
			Want:     fmt.Sprintf("%d", len(s)),
			Got:      fmt.Sprintf("%d", len(values)),
		}
	}
	for i, kind := range s {
		if !kind.Accepts(values[i].Type) {
			return &DecodeError{
				Key:      key,
				Position: i,
				Want:     kind.Name,
				Got:      values[i].Type,
			}
		}
	}
	return nil
}

// ArgError wraps a value decode failure at a known argument position
func ArgError(key string, pos int, kind Kind, err error) error {
	return &DecodeError{
		Key:      key,
		Position: pos,
		Want:     kind.Name,
		Got:      err.Error(),
		Err:      err,
	}
}
