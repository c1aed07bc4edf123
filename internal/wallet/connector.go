package wallet

import (
	"context"
	"sort"
	"sync"

	"github.com/rovshanmuradov/tipstark/pkg/starknet"
)

// Account is a connected account able to execute transactions.
type Account interface {
	Address() string
	ChainID() string
	// Execute submits calls as one multicall transaction and returns its hash.
	Execute(ctx context.Context, calls []starknet.Call) (string, error)
}

// Connector hands out accounts for a subject (a session owner).
type Connector interface {
	ID() string
	Enable(ctx context.Context, subject string) (Account, error)
}

// Registry holds the connectors available to sessions.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[string]Connector)}
	for _, c := range connectors {
		r.Register(c)
	}
	return r
}

func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.ID()] = c
}

func (r *Registry) Get(id string) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[id]
	return c, ok
}

// IDs lists registered connector ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.connectors))
	for id := range r.connectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
