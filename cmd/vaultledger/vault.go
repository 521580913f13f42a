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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/blinklabs-io/vaultledger/chain"
	"github.com/blinklabs-io/vaultledger/database/models"
	"github.com/blinklabs-io/vaultledger/internal/config"
	"github.com/blinklabs-io/vaultledger/internal/node"
	"github.com/blinklabs-io/vaultledger/vault"
	"github.com/spf13/cobra"
)

type vaultView struct {
	RegisterDate       *time.Time `json:"registerDate,omitempty"`
	LastEventAt        *time.Time `json:"lastEventAt,omitempty"`
	BannedUntilBlock   *uint64    `json:"bannedUntilBlock,omitempty"`
	ID                 string     `json:"id"`
	Status             string     `json:"status"`
	CollateralAmount   string     `json:"collateralAmount"`
	IssuedTokens       string     `json:"issuedTokens"`
	ToBeIssuedTokens   string     `json:"toBeIssuedTokens"`
	ToBeRedeemedTokens string     `json:"toBeRedeemedTokens"`
	Height             uint64     `json:"height"`
}

func newVaultView(v *models.Vault, height uint64) vaultView {
	return vaultView{
		ID:                 v.ID,
		Status:             vault.StatusOf(v, height).String(),
		Height:             height,
		CollateralAmount:   v.CollateralAmount.String(),
		IssuedTokens:       v.IssuedTokens.String(),
		ToBeIssuedTokens:   v.ToBeIssuedTokens.String(),
		ToBeRedeemedTokens: v.ToBeRedeemedTokens.String(),
		RegisterDate:       v.RegisterDate,
		LastEventAt:        v.LastEventAt,
		BannedUntilBlock:   v.BannedUntilBlock,
	}
}

func writeVault(w io.Writer, v *models.Vault, height uint64) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newVaultView(v, height))
}

func vaultRun(
	cfg *config.Config,
	w io.Writer,
	arg string,
	height uint64,
	heightSet bool,
) error {
	id, err := chain.ParseAccountID(arg)
	if err != nil {
		return err
	}
	// stdout carries the JSON document
	logLevel := slog.LevelWarn
	if globalFlags.debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}),
	)
	idx, err := node.NewIndexer(cfg, logger, nil)
	if err != nil {
		return err
	}
	ctx := context.Background()
	v, err := idx.Vault(ctx, id)
	if err != nil {
		return errors.Join(err, idx.Stop())
	}
	if !heightSet {
		cp, err := idx.Checkpoint(ctx)
		if err != nil {
			return errors.Join(err, idx.Stop())
		}
		if cp != nil {
			height = cp.BlockNumber
		}
	}
	if err := writeVault(w, v, height); err != nil {
		return errors.Join(err, idx.Stop())
	}
	return idx.Stop()
}

func vaultCommand() *cobra.Command {
	var height uint64
	cmd := &cobra.Command{
		Use:   "vault <account-id>",
		Short: "Print the stored state of a vault as JSON",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := configFromCmd(cmd)
			heightSet := cmd.Flags().Changed("height")
			if err := vaultRun(cfg, os.Stdout, args[0], height, heightSet); err != nil {
				fmt.Fprintln(os.Stderr, err.Error())
				os.Exit(1)
			}
		},
	}
	cmd.Flags().
		Uint64Var(&height, "height", 0, "chain height at which to evaluate the ban status (default: last committed block)")
	return cmd
}
