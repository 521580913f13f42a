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

package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDSN(t *testing.T) {
	dsn, err := NormalizeDSN("user:pass@tcp(127.0.0.1:3306)/vaults")
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "user:pass@tcp(127.0.0.1:3306)/vaults")
}

func TestNormalizeDSNInvalid(t *testing.T) {
	_, err := NormalizeDSN("not a dsn")
	require.Error(t, err)
}

func TestNewRequiresDSN(t *testing.T) {
	_, err := New()
	require.Error(t, err)
}
