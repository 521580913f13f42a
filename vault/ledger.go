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

// Package vault maintains the running state of each vault and the audit
// rows of the events that change it
package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/vaultledger/database"
	"github.com/blinklabs-io/vaultledger/database/models"
	"github.com/blinklabs-io/vaultledger/database/types"
	"github.com/gaze-network/uint128"
)

var (
	ErrCounterUnderflow       = errors.New("vault counter underflow")
	ErrCounterOverflow        = errors.New("vault counter overflow")
	ErrInvalidUnderflowPolicy = errors.New("invalid underflow policy")
	ErrVaultNotFound          = errors.New("vault not found")
)

// UnderflowPolicy selects what happens when a decrement exceeds a counter
type UnderflowPolicy string

const (
	// UnderflowFault fails the event with ErrCounterUnderflow
	UnderflowFault UnderflowPolicy = "fault"
	// UnderflowClamp saturates the counter at zero and logs a warning
	UnderflowClamp UnderflowPolicy = "clamp"
)

func ParseUnderflowPolicy(s string) (UnderflowPolicy, error) {
	switch UnderflowPolicy(s) {
	case "", UnderflowFault:
		return UnderflowFault, nil
	case UnderflowClamp:
		return UnderflowClamp, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidUnderflowPolicy, s)
	}
}

// Ledger resolves vaults and serializes read-modify-write cycles on each
type Ledger struct {
	logger *slog.Logger
	policy UnderflowPolicy
	locks  map[string]*vaultLock
	mu     sync.Mutex
}

type vaultLock struct {
	sync.Mutex
	refs int
}

type LedgerOptionFunc func(*Ledger)

func WithLogger(logger *slog.Logger) LedgerOptionFunc {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func WithUnderflowPolicy(policy UnderflowPolicy) LedgerOptionFunc {
	return func(l *Ledger) {
		l.policy = policy
	}
}

func NewLedger(opts ...LedgerOptionFunc) *Ledger {
	l := &Ledger{
		policy: UnderflowFault,
		locks:  make(map[string]*vaultLock),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	l.logger = l.logger.With("component", "vault")
	return l
}

func (l *Ledger) lock(id string) func() {
	l.mu.Lock()
	vl, ok := l.locks[id]
	if !ok {
		vl = &vaultLock{}
		l.locks[id] = vl
	}
	vl.refs++
	l.mu.Unlock()
	vl.Lock()
	return func() {
		vl.Unlock()
		l.mu.Lock()
		vl.refs--
		if vl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *Ledger) load(
	ctx context.Context,
	store database.EntityStore,
	id string,
) (*models.Vault, bool, error) {
	v := &models.Vault{}
	found, err := store.Get(ctx, id, v)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return &models.Vault{ID: id}, false, nil
	}
	return v, true, nil
}

// Ensure returns the vault with the given id, creating it when absent
func (l *Ledger) Ensure(
	ctx context.Context,
	store database.EntityStore,
	id string,
) (*models.Vault, error) {
	unlock := l.lock(id)
	defer unlock()
	v, found, err := l.load(ctx, store, id)
	if err != nil {
		return nil, err
	}
	if found {
		return v, nil
	}
	if err := store.Save(ctx, v); err != nil {
		return nil, err
	}
	l.logger.Debug("created vault", "vault", id)
	return v, nil
}

// Get returns the stored vault or ErrVaultNotFound
func (l *Ledger) Get(
	ctx context.Context,
	store database.EntityStore,
	id string,
) (*models.Vault, error) {
	v, found, err := l.load(ctx, store, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrVaultNotFound, id)
	}
	return v, nil
}

// Update resolves the vault, lazily creating it, applies fn and saves the
// result with lastEventAt set to at. The vault is locked for the whole cycle.
func (l *Ledger) Update(
	ctx context.Context,
	store database.EntityStore,
	id string,
	at time.Time,
	fn func(*models.Vault) error,
) (*models.Vault, error) {
	unlock := l.lock(id)
	defer unlock()
	v, found, err := l.load(ctx, store, id)
	if err != nil {
		return nil, err
	}
	if !found {
		l.logger.Debug("created vault", "vault", id)
	}
	if err := fn(v); err != nil {
		return nil, err
	}
	v.LastEventAt = &at
	if err := store.Save(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (l *Ledger) add(
	vaultID string,
	counter string,
	value *types.Uint128,
	delta uint128.Uint128,
) error {
	sum := value.AddWrap(delta)
	if sum.Cmp(value.Uint128) < 0 {
		return fmt.Errorf(
			"%w: %s of %s + %s",
			ErrCounterOverflow,
			counter,
			vaultID,
			delta,
		)
	}
	value.Uint128 = sum
	return nil
}

func (l *Ledger) sub(
	vaultID string,
	counter string,
	value *types.Uint128,
	delta uint128.Uint128,
) error {
	if value.Cmp(delta) < 0 {
		if l.policy == UnderflowClamp {
			l.logger.Warn(
				"clamping vault counter at zero",
				"vault", vaultID,
				"counter", counter,
				"value", value.String(),
				"delta", delta.String(),
			)
			value.Uint128 = uint128.Zero
			return nil
		}
		return fmt.Errorf(
			"%w: %s of %s is %s, cannot subtract %s",
			ErrCounterUnderflow,
			counter,
			vaultID,
			value,
			delta,
		)
	}
	value.Uint128 = value.Sub(delta)
	return nil
}
