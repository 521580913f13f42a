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

// Package dispatch routes chain events to the handlers that decode them and
// apply their effects
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/blinklabs-io/vaultledger/chain"
	"github.com/blinklabs-io/vaultledger/database"
	"github.com/blinklabs-io/vaultledger/database/models"
)

var (
	ErrDuplicateHandler = errors.New("handler already registered")
	ErrInvalidKey       = errors.New("invalid dispatch key")
)

// Key identifies an event by its pallet section and method name
type Key struct {
	Section string
	Method  string
}

func (k Key) String() string {
	return k.Section + "/" + k.Method
}

// ParseKey parses a key in "section/method" form
func ParseKey(s string) (Key, error) {
	section, method, ok := strings.Cut(s, "/")
	if !ok || section == "" || method == "" {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return Key{Section: section, Method: method}, nil
}

// Request carries a single event through its handler
type Request struct {
	Store    database.EntityStore
	Envelope *models.Event
	// Origin is the signer of the extrinsic that emitted the event, if any
	Origin  string
	Args    []chain.Value
	Key     Key
	touched []string
}

// MarkVault records that the handler modified the vault with the given id
func (r *Request) MarkVault(id string) {
	if !slices.Contains(r.touched, id) {
		r.touched = append(r.touched, id)
	}
}

// TouchedVaults returns the vault ids modified while handling the request
func (r *Request) TouchedVaults() []string {
	return r.touched
}

// ArgError wraps an argument decode failure for this request's key
func (r *Request) ArgError(pos int, kind chain.Kind, err error) error {
	return chain.ArgError(r.Key.String(), pos, kind, err)
}

// Handler decodes and applies one kind of event. Apply is only called with
// arguments that satisfy Schema.
type Handler interface {
	Schema() chain.Schema
	Apply(ctx context.Context, req *Request) error
}

type handlerFunc struct {
	fn     func(context.Context, *Request) error
	schema chain.Schema
}

// NewHandler builds a Handler from a schema and an apply function
func NewHandler(
	schema chain.Schema,
	fn func(context.Context, *Request) error,
) Handler {
	return &handlerFunc{schema: schema, fn: fn}
}

func (h *handlerFunc) Schema() chain.Schema {
	return h.schema
}

func (h *handlerFunc) Apply(ctx context.Context, req *Request) error {
	return h.fn(ctx, req)
}

// Registry maps event keys to handlers. Each pipeline owns its own registry.
type Registry struct {
	handlers map[Key]Handler
	mu       sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[Key]Handler),
	}
}

// Register adds a handler for key
func (r *Registry) Register(key Key, handler Handler) error {
	if key.Section == "" || key.Method == "" {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key.String())
	}
	if handler == nil {
		return fmt.Errorf("nil handler for %s", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, key)
	}
	r.handlers[key] = handler
	return nil
}

// Lookup returns the handler registered for key
func (r *Registry) Lookup(key Key) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[key]
	return h, ok
}

// Keys returns the registered keys in sorted order
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	ret := make([]Key, 0, len(r.handlers))
	for k := range r.handlers {
		ret = append(ret, k)
	}
	r.mu.RUnlock()
	slices.SortFunc(ret, func(a, b Key) int {
		return strings.Compare(a.String(), b.String())
	})
	return ret
}

// Dispatch validates the request arguments against the handler schema and
// applies the handler. Keys without a handler are ignored and reported as
// not handled.
func (r *Registry) Dispatch(ctx context.Context, req *Request) (bool, error) {
	handler, ok := r.Lookup(req.Key)
	if !ok {
		return false, nil
	}
	if err := handler.Schema().Validate(req.Key.String(), req.Args); err != nil {
		return false, err
	}
	if err := handler.Apply(ctx, req); err != nil {
		return false, fmt.Errorf("apply %s: %w", req.Key, err)
	}
	return true, nil
}
