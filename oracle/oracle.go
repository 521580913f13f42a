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

// Package oracle records the exchange rates fed to the chain oracle
package oracle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"

	"github.com/blinklabs-io/vaultledger/chain"
	"github.com/blinklabs-io/vaultledger/database"
	"github.com/blinklabs-io/vaultledger/database/models"
	"github.com/blinklabs-io/vaultledger/database/types"
	"github.com/blinklabs-io/vaultledger/dispatch"
	"github.com/gaze-network/uint128"
	"github.com/shopspring/decimal"
)

const (
	Section          = "oracle"
	MethodFeedValues = "FeedValues"
)

const (
	// FixedPointDecimals is the scale of UnsignedFixedPoint values
	FixedPointDecimals = 18
	// RatePrecision is the number of decimals kept before the percent shift
	RatePrecision = 4
)

// DecodeFixedPoint converts a raw 10^18-scaled rate into its stored form:
// rounded to RatePrecision decimals, then divided by 100
func DecodeFixedPoint(raw *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -FixedPointDecimals).
		Round(RatePrecision).
		Shift(-2)
}

// ExchangeRateValue returns the decimal string stored for a raw rate
func ExchangeRateValue(raw *big.Int) string {
	return DecodeFixedPoint(raw).String()
}

// Feed handles oracle value submissions
type Feed struct {
	logger     *slog.Logger
	writeLimit int
}

type FeedOptionFunc func(*Feed)

func WithLogger(logger *slog.Logger) FeedOptionFunc {
	return func(f *Feed) {
		f.logger = logger
	}
}

// WithWriteLimit bounds the parallel row writes of one submission
func WithWriteLimit(limit int) FeedOptionFunc {
	return func(f *Feed) {
		f.writeLimit = limit
	}
}

func NewFeed(opts ...FeedOptionFunc) *Feed {
	f := &Feed{
		writeLimit: database.DefaultDisjointWriteLimit,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	f.logger = f.logger.With("component", "oracle")
	return f
}

// Register adds the oracle/FeedValues handler to reg
func (f *Feed) Register(reg *dispatch.Registry) error {
	return reg.Register(
		dispatch.Key{Section: Section, Method: MethodFeedValues},
		dispatch.NewHandler(
			chain.Schema{chain.KindAccountID, chain.KindOracleValues},
			f.feedValues,
		),
	)
}

// rateID names the n-th exchange rate of a submission. The first keeps the
// event id so single-rate submissions map 1:1 onto their event.
func rateID(eventID string, n int) string {
	if n == 0 {
		return eventID
	}
	return fmt.Sprintf("%s-%d", eventID, n)
}

func (f *Feed) feedValues(ctx context.Context, req *dispatch.Request) error {
	origin, err := req.Args[0].AccountID()
	if err != nil {
		return req.ArgError(0, chain.KindAccountID, err)
	}
	values, err := req.Args[1].OracleValues()
	if err != nil {
		return req.ArgError(1, chain.KindOracleValues, err)
	}
	rows := make([]models.Entity, 0, len(values))
	for _, v := range values {
		if v.Kind != chain.OracleKeyExchangeRate {
			f.logger.Debug(
				"skipping oracle value",
				"event", req.Envelope.ID,
				"kind", v.Kind,
				"key", v.Key,
			)
			continue
		}
		raw, err := uint128.FromBig(v.Raw)
		if err != nil {
			return req.ArgError(1, chain.KindOracleValues, err)
		}
		rows = append(rows, &models.OracleExchangeRate{
			ID:          rateID(req.Envelope.ID, len(rows)),
			Key:         v.Key,
			Origin:      origin,
			Value:       DecodeFixedPoint(v.Raw),
			RawValue:    types.NewUint128(raw),
			Timestamp:   req.Envelope.Timestamp,
			BlockNumber: req.Envelope.BlockNumber,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return database.SaveDisjoint(ctx, req.Store, rows, f.writeLimit)
}
