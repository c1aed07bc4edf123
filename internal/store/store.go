// Package store defines the remote document store that mirrors tips and
// creator profiles. Backends live in subpackages (memory, supabase) and in
// internal/db (postgres).
package store

import (
	"context"

	"github.com/rovshanmuradov/tipstark/internal/domain"
)

// DefaultTipLimit caps ListTips when the query sets no limit.
const DefaultTipLimit = 50

type TipQuery struct {
	// Sender filters by lowercase sender address; empty means all senders.
	Sender string
	Limit  int
}

// EffectiveLimit returns Limit or DefaultTipLimit when unset.
func (q TipQuery) EffectiveLimit() int {
	if q.Limit <= 0 {
		return DefaultTipLimit
	}
	return q.Limit
}

// RemoteStore is the replica of the in-session ledger and directory.
type RemoteStore interface {
	// CreateTip appends a tip record. Returns ErrDuplicateKey if the id exists.
	CreateTip(ctx context.Context, tip *domain.Tip) error

	// UpdateTipStatus moves the pending tip with the given id to status.
	// Returns ErrNotFound if no such tip exists and ErrStatusConflict if the
	// stored tip is no longer pending, so exactly one caller wins a transition.
	UpdateTipStatus(ctx context.Context, id string, status domain.TipStatus) error

	// ListTips returns tips ordered by timestamp DESC, limited by the query.
	ListTips(ctx context.Context, q TipQuery) ([]*domain.Tip, error)

	// GetProfile returns the creator keyed by lowercase address.
	GetProfile(ctx context.Context, address string) (*domain.Creator, error)

	// UpsertProfile inserts or replaces a creator record keyed by address.
	UpsertProfile(ctx context.Context, c *domain.Creator) error

	// ListProfiles returns every stored creator.
	ListProfiles(ctx context.Context) ([]*domain.Creator, error)

	// IncrementTipCount adds one to the creator's tip count.
	// Returns ErrNotFound if the creator has no stored profile.
	IncrementTipCount(ctx context.Context, address string) error
}
