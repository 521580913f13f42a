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

package vault

import (
	"context"

	"github.com/blinklabs-io/vaultledger/chain"
	"github.com/blinklabs-io/vaultledger/database/models"
	"github.com/blinklabs-io/vaultledger/database/types"
	"github.com/blinklabs-io/vaultledger/dispatch"
	"github.com/gaze-network/uint128"
)

const Section = "vaultRegistry"

const (
	MethodRegisterAddress            = "RegisterAddress"
	MethodRegisterVault              = "RegisterVault"
	MethodBanVault                   = "BanVault"
	MethodIncreaseToBeRedeemedTokens = "IncreaseToBeRedeemedTokens"
	MethodDecreaseToBeRedeemedTokens = "DecreaseToBeRedeemedTokens"
	MethodIncreaseToBeIssuedTokens   = "IncreaseToBeIssuedTokens"
	MethodDecreaseToBeIssuedTokens   = "DecreaseToBeIssuedTokens"
	MethodIssueTokens                = "IssueTokens"
	MethodRedeemTokens               = "RedeemTokens"
	MethodDepositCollateral          = "DepositCollateral"
	MethodWithdrawCollateral         = "WithdrawCollateral"
)

// Register adds the vault registry event handlers to reg
func (l *Ledger) Register(reg *dispatch.Registry) error {
	handlers := map[string]dispatch.Handler{
		MethodRegisterAddress: dispatch.NewHandler(
			chain.Schema{chain.KindAccountID, chain.KindBtcAddress},
			l.registerAddress,
		),
		MethodRegisterVault: dispatch.NewHandler(
			chain.Schema{chain.KindAccountID, chain.KindCollateral},
			l.registerVault,
		),
		MethodBanVault: dispatch.NewHandler(
			chain.Schema{chain.KindAccountID, chain.KindBlockNumber},
			l.banVault,
		),
		MethodIncreaseToBeRedeemedTokens: l.counterHandler(
			"toBeRedeemedTokens",
			toBeRedeemed,
			true,
		),
		MethodDecreaseToBeRedeemedTokens: l.counterHandler(
			"toBeRedeemedTokens",
			toBeRedeemed,
			false,
		),
		MethodIncreaseToBeIssuedTokens: l.counterHandler(
			"toBeIssuedTokens",
			toBeIssued,
			true,
		),
		MethodDecreaseToBeIssuedTokens: l.counterHandler(
			"toBeIssuedTokens",
			toBeIssued,
			false,
		),
		MethodIssueTokens: dispatch.NewHandler(
			chain.Schema{chain.KindAccountID, chain.KindWrapped},
			l.issueTokens,
		),
		MethodRedeemTokens: dispatch.NewHandler(
			chain.Schema{chain.KindAccountID, chain.KindWrapped},
			l.redeemTokens,
		),
		MethodDepositCollateral: dispatch.NewHandler(
			chain.Schema{
				chain.KindAccountID,
				chain.KindCollateral,
				chain.KindCollateral,
				chain.KindCollateral,
			},
			l.depositCollateral,
		),
		MethodWithdrawCollateral: dispatch.NewHandler(
			chain.Schema{
				chain.KindAccountID,
				chain.KindCollateral,
				chain.KindCollateral,
			},
			l.withdrawCollateral,
		),
	}
	for method, handler := range handlers {
		key := dispatch.Key{Section: Section, Method: method}
		if err := reg.Register(key, handler); err != nil {
			return err
		}
	}
	return nil
}

func toBeRedeemed(v *models.Vault) *types.Uint128 {
	return &v.ToBeRedeemedTokens
}

func toBeIssued(v *models.Vault) *types.Uint128 {
	return &v.ToBeIssuedTokens
}

func vaultArg(req *dispatch.Request) (string, error) {
	id, err := req.Args[0].AccountID()
	if err != nil {
		return "", req.ArgError(0, chain.KindAccountID, err)
	}
	return id, nil
}

func amountArg(
	req *dispatch.Request,
	pos int,
	kind chain.Kind,
) (uint128.Uint128, error) {
	amount, err := req.Args[pos].Amount()
	if err != nil {
		return uint128.Zero, req.ArgError(pos, kind, err)
	}
	return amount, nil
}

// vaultAmount decodes the common (AccountId, amount) pair
func vaultAmount(
	req *dispatch.Request,
	kind chain.Kind,
) (string, uint128.Uint128, error) {
	id, err := vaultArg(req)
	if err != nil {
		return "", uint128.Zero, err
	}
	amount, err := amountArg(req, 1, kind)
	if err != nil {
		return "", uint128.Zero, err
	}
	return id, amount, nil
}

func (l *Ledger) update(
	ctx context.Context,
	req *dispatch.Request,
	id string,
	fn func(*models.Vault) error,
) error {
	if _, err := l.Update(ctx, req.Store, id, req.Envelope.Timestamp, fn); err != nil {
		return err
	}
	req.MarkVault(id)
	return nil
}

func (l *Ledger) registerAddress(ctx context.Context, req *dispatch.Request) error {
	id, err := vaultArg(req)
	if err != nil {
		return err
	}
	addr, err := req.Args[1].BtcAddress()
	if err != nil {
		return req.ArgError(1, chain.KindBtcAddress, err)
	}
	err = l.update(ctx, req, id, func(*models.Vault) error { return nil })
	if err != nil {
		return err
	}
	return req.Store.Save(ctx, &models.BTCAddress{
		ID:          addr,
		VaultID:     id,
		Timestamp:   req.Envelope.Timestamp,
		BlockNumber: req.Envelope.BlockNumber,
	})
}

func (l *Ledger) registerVault(ctx context.Context, req *dispatch.Request) error {
	id, collateral, err := vaultAmount(req, chain.KindCollateral)
	if err != nil {
		return err
	}
	return l.update(ctx, req, id, func(v *models.Vault) error {
		registered := req.Envelope.Timestamp
		v.CollateralAmount = types.NewUint128(collateral)
		v.RegisterDate = &registered
		return nil
	})
}

func (l *Ledger) banVault(ctx context.Context, req *dispatch.Request) error {
	id, err := vaultArg(req)
	if err != nil {
		return err
	}
	until, err := req.Args[1].BlockNumber()
	if err != nil {
		return req.ArgError(1, chain.KindBlockNumber, err)
	}
	return l.update(ctx, req, id, func(v *models.Vault) error {
		v.BannedUntilBlock = &until
		return nil
	})
}

func (l *Ledger) counterHandler(
	counter string,
	field func(*models.Vault) *types.Uint128,
	increase bool,
) dispatch.Handler {
	return dispatch.NewHandler(
		chain.Schema{chain.KindAccountID, chain.KindWrapped},
		func(ctx context.Context, req *dispatch.Request) error {
			id, amount, err := vaultAmount(req, chain.KindWrapped)
			if err != nil {
				return err
			}
			return l.update(ctx, req, id, func(v *models.Vault) error {
				if increase {
					return l.add(id, counter, field(v), amount)
				}
				return l.sub(id, counter, field(v), amount)
			})
		},
	)
}

func (l *Ledger) issueTokens(ctx context.Context, req *dispatch.Request) error {
	id, amount, err := vaultAmount(req, chain.KindWrapped)
	if err != nil {
		return err
	}
	err = l.update(ctx, req, id, func(v *models.Vault) error {
		return l.add(id, "issuedTokens", &v.IssuedTokens, amount)
	})
	if err != nil {
		return err
	}
	return req.Store.Save(ctx, &models.TokenIssueEvent{
		ID:          req.Envelope.ID,
		VaultID:     id,
		Amount:      types.NewUint128(amount),
		Timestamp:   req.Envelope.Timestamp,
		BlockNumber: req.Envelope.BlockNumber,
	})
}

func (l *Ledger) redeemTokens(ctx context.Context, req *dispatch.Request) error {
	id, amount, err := vaultAmount(req, chain.KindWrapped)
	if err != nil {
		return err
	}
	err = l.update(ctx, req, id, func(v *models.Vault) error {
		return l.sub(id, "issuedTokens", &v.IssuedTokens, amount)
	})
	if err != nil {
		return err
	}
	return req.Store.Save(ctx, &models.TokenRedeemEvent{
		ID:          req.Envelope.ID,
		VaultID:     id,
		Amount:      types.NewUint128(amount),
		Timestamp:   req.Envelope.Timestamp,
		BlockNumber: req.Envelope.BlockNumber,
	})
}

// collateralSnapshot decodes (AccountId, delta, total, ...) and sets the
// vault collateral to the reported total
func (l *Ledger) collateralSnapshot(
	ctx context.Context,
	req *dispatch.Request,
) (string, uint128.Uint128, uint128.Uint128, error) {
	id, delta, err := vaultAmount(req, chain.KindCollateral)
	if err != nil {
		return "", uint128.Zero, uint128.Zero, err
	}
	total, err := amountArg(req, 2, chain.KindCollateral)
	if err != nil {
		return "", uint128.Zero, uint128.Zero, err
	}
	err = l.update(ctx, req, id, func(v *models.Vault) error {
		v.CollateralAmount = types.NewUint128(total)
		return nil
	})
	if err != nil {
		return "", uint128.Zero, uint128.Zero, err
	}
	return id, delta, total, nil
}

func (l *Ledger) depositCollateral(ctx context.Context, req *dispatch.Request) error {
	// Free collateral is validated but not tracked
	if _, err := amountArg(req, 3, chain.KindCollateral); err != nil {
		return err
	}
	id, delta, total, err := l.collateralSnapshot(ctx, req)
	if err != nil {
		return err
	}
	return req.Store.Save(ctx, &models.DepositCollateralEvent{
		ID:              req.Envelope.ID,
		VaultID:         id,
		Amount:          types.NewUint128(delta),
		TotalCollateral: types.NewUint128(total),
		Timestamp:       req.Envelope.Timestamp,
		BlockNumber:     req.Envelope.BlockNumber,
	})
}

func (l *Ledger) withdrawCollateral(ctx context.Context, req *dispatch.Request) error {
	id, delta, total, err := l.collateralSnapshot(ctx, req)
	if err != nil {
		return err
	}
	return req.Store.Save(ctx, &models.WithdrawCollateralEvent{
		ID:              req.Envelope.ID,
		VaultID:         id,
		Amount:          types.NewUint128(delta),
		TotalCollateral: types.NewUint128(total),
		Timestamp:       req.Envelope.Timestamp,
		BlockNumber:     req.Envelope.BlockNumber,
	})
}
