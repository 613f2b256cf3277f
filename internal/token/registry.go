package token

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"fsp-staking/internal/domain"
)

// ErrUnknownToken is returned when no token is registered at an address.
var ErrUnknownToken = errors.New("unknown token")

// Registry resolves token addresses.
type Registry struct {
	mu     sync.RWMutex
	tokens map[domain.Address]Token
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[domain.Address]Token)}
}

// Register adds t, replacing any token at the same address.
func (r *Registry) Register(t Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[t.Address()] = t
}

// Get returns the token at addr.
func (r *Registry) Get(addr domain.Address) (Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("%s: %w", addr, ErrUnknownToken)
	}
	return t, nil
}

// List returns all tokens ordered by symbol.
func (r *Registry) List() []Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Token, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol() != out[j].Symbol() {
			return out[i].Symbol() < out[j].Symbol()
		}
		return out[i].Address().String() < out[j].Address().String()
	})
	return out
}
