// Package directory keeps the shared list of creators: seeded profiles,
// profiles from the remote store, and tip totals read from the chain.
package directory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tipstark/internal/domain"
	"github.com/rovshanmuradov/tipstark/internal/metrics"
	"github.com/rovshanmuradov/tipstark/internal/scheduler"
	"github.com/rovshanmuradov/tipstark/internal/store"
	"github.com/rovshanmuradov/tipstark/pkg/utils"
)

const (
	DefaultRefreshInterval = 30 * time.Second
	defaultCallTimeout     = 30 * time.Second
)

// TotalsReader reads cumulative raw tip amounts from the tipping contract.
type TotalsReader interface {
	TotalTips(ctx context.Context, contract, creator string) (*big.Int, error)
}

// Snapshot persists the creator list locally.
type Snapshot interface {
	SaveCreators(ctx context.Context, creators []*domain.Creator) error
	LoadCreators(ctx context.Context) ([]*domain.Creator, error)
}

type Config struct {
	TipContract     string
	TokenDecimals   int32
	RefreshInterval time.Duration
	CallTimeout     time.Duration
}

type Directory struct {
	cfg      Config
	chain    TotalsReader
	store    store.RemoteStore
	snapshot Snapshot
	logger   *zap.Logger
	metrics  *metrics.Metrics
	task     *scheduler.Task

	mu       sync.RWMutex
	creators []*domain.Creator
	index    map[string]int
}

// New builds an empty directory. snapshot, sched and m may be nil.
func New(cfg Config, chain TotalsReader, st store.RemoteStore, snapshot Snapshot, sched *scheduler.Scheduler, logger *zap.Logger, m *metrics.Metrics) *Directory {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.TokenDecimals == 0 {
		cfg.TokenDecimals = utils.DefaultDecimals
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Directory{
		cfg:      cfg,
		chain:    chain,
		store:    st,
		snapshot: snapshot,
		logger:   logger.Named("directory"),
		metrics:  m,
		index:    make(map[string]int),
	}
	if sched != nil {
		d.task = sched.NewTask("totals", cfg.RefreshInterval, d.refreshJob)
	}
	return d
}

// Load fills the directory from seed, the local snapshot and the remote
// store, in that order. Later sources replace profile fields of earlier
// ones. A store failure is returned but leaves the other sources loaded.
func (d *Directory) Load(ctx context.Context, seed []*domain.Creator) error {
	d.replace(seed)

	if d.snapshot != nil {
		if cached, err := d.snapshot.LoadCreators(ctx); err == nil {
			d.replace(cached)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()
	profiles, err := d.store.ListProfiles(callCtx)
	if err != nil {
		d.logger.Warn("Failed to list profiles", zap.Error(err))
		return fmt.Errorf("list profiles: %w", err)
	}
	d.replace(profiles)
	d.saveSnapshot(ctx)

	d.logger.Info("Creators loaded", zap.Int("count", d.Len()))
	return nil
}

// replace merges incoming creators into the list as one batch.
func (d *Directory) replace(incoming []*domain.Creator) {
	if len(incoming) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, in := range incoming {
		if in == nil {
			continue
		}
		addr, err := domain.ValidateAddress(in.Address)
		if err != nil {
			d.logger.Warn("Skipping creator with invalid address", zap.String("address", in.Address))
			continue
		}
		c := *in
		c.Address = addr
		c.ID = addr
		if c.Avatar == "" {
			c.Avatar = domain.DefaultAvatar
		}
		if c.Category == "" {
			c.Category = domain.CategoryOther
		}
		if i, ok := d.index[addr]; ok {
			d.creators[i] = &c
			continue
		}
		d.index[addr] = len(d.creators)
		d.creators = append(d.creators, &c)
	}
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.creators)
}

// Creators returns a copy of every creator in load order.
func (d *Directory) Creators() []domain.Creator {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Creator, len(d.creators))
	for i, c := range d.creators {
		out[i] = *c
	}
	return out
}

// Get returns the creator with the given address or store.ErrNotFound.
func (d *Directory) Get(address string) (domain.Creator, error) {
	addr := domain.NormalizeAddress(address)
	d.mu.RLock()
	defer d.mu.RUnlock()
	i, ok := d.index[addr]
	if !ok {
		return domain.Creator{}, store.ErrNotFound
	}
	return *d.creators[i], nil
}

// Search filters creators whose name or bio contains term. An empty
// category or "all" matches every category.
func (d *Directory) Search(term, category string) ([]domain.Creator, error) {
	var want domain.Category
	if category != "" && category != "all" {
		c, err := domain.ParseCategory(category)
		if err != nil {
			return nil, err
		}
		want = c
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Creator, 0, len(d.creators))
	for _, c := range d.creators {
		if want != "" && c.Category != want {
			continue
		}
		if !c.Matches(term) {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

// Stats aggregates the directory. tipCount is the number of tips in the
// caller's ledger.
func (d *Directory) Stats(tipCount int64) domain.Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := domain.Stats{
		TotalTips:     tipCount,
		TotalCreators: len(d.creators),
		TotalAmount:   decimal.Zero,
	}
	var top *domain.Creator
	for _, c := range d.creators {
		stats.TotalAmount = stats.TotalAmount.Add(c.TotalTips)
		if top == nil || c.TotalTips.GreaterThan(top.TotalTips) {
			top = c
		}
	}
	if top != nil {
		stats.TopCreator = top.Name
	}
	return stats
}

// SaveProfile creates or replaces the profile at address on behalf of
// caller. Only the owner may edit a profile. Tip totals, tip count and the
// verified flag are kept from the existing record.
func (d *Directory) SaveProfile(ctx context.Context, caller, address string, in domain.ProfileInput) (domain.Creator, error) {
	addr, err := domain.ValidateAddress(address)
	if err != nil {
		return domain.Creator{}, err
	}
	if !domain.SameAddress(caller, addr) {
		return domain.Creator{}, domain.ErrNotProfileOwner
	}
	category, err := in.Validate()
	if err != nil {
		return domain.Creator{}, err
	}

	c := domain.Creator{
		ID:        addr,
		Address:   addr,
		Name:      in.Name,
		Avatar:    in.Avatar,
		Bio:       in.Bio,
		Category:  category,
		TotalTips: decimal.Zero,
		Social:    in.Social,
	}
	if c.Avatar == "" {
		c.Avatar = domain.DefaultAvatar
	}

	if existing, err := d.Get(addr); err == nil {
		c.TotalTips = existing.TotalTips
		c.TipCount = existing.TipCount
		c.Verified = existing.Verified
	} else {
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		remote, err := d.store.GetProfile(callCtx, addr)
		cancel()
		switch {
		case err == nil:
			c.TotalTips = remote.TotalTips
			c.TipCount = remote.TipCount
			c.Verified = remote.Verified
		case !errors.Is(err, store.ErrNotFound):
			return domain.Creator{}, fmt.Errorf("get profile: %w", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()
	if err := d.store.UpsertProfile(callCtx, &c); err != nil {
		d.logger.Error("Failed to save profile", zap.String("address", addr), zap.Error(err))
		return domain.Creator{}, fmt.Errorf("upsert profile: %w", err)
	}

	d.replace([]*domain.Creator{&c})
	d.saveSnapshot(ctx)
	d.logger.Info("Profile saved", zap.String("address", addr))
	return c, nil
}

// IncrementTipCount records a confirmed tip for address locally and in the
// remote store. A creator known only from the seed list is written to the
// store first.
func (d *Directory) IncrementTipCount(ctx context.Context, address string) error {
	addr := domain.NormalizeAddress(address)

	var local *domain.Creator
	d.mu.Lock()
	if i, ok := d.index[addr]; ok {
		d.creators[i].TipCount++
		c := *d.creators[i]
		local = &c
	}
	d.mu.Unlock()

	err := d.store.IncrementTipCount(ctx, addr)
	if errors.Is(err, store.ErrNotFound) && local != nil {
		err = d.store.UpsertProfile(ctx, local)
	}
	if err != nil {
		return fmt.Errorf("increment tip count: %w", err)
	}
	return nil
}

// RefreshTotals reads every creator's total from the contract. A failed
// read counts as zero for that creator. Results are applied in one batch.
func (d *Directory) RefreshTotals(ctx context.Context) {
	d.mu.RLock()
	addrs := make([]string, len(d.creators))
	for i, c := range d.creators {
		addrs[i] = c.Address
	}
	d.mu.RUnlock()

	totals := make(map[string]decimal.Decimal, len(addrs))
	failures := 0
	for _, addr := range addrs {
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		raw, err := d.chain.TotalTips(callCtx, d.cfg.TipContract, addr)
		cancel()
		if err != nil {
			failures++
			d.logger.Warn("Failed to read creator total", zap.String("address", addr), zap.Error(err))
			totals[addr] = decimal.Zero
			continue
		}
		totals[addr] = utils.FromBaseUnits(raw, d.cfg.TokenDecimals)
	}

	d.mu.Lock()
	for _, c := range d.creators {
		if v, ok := totals[c.Address]; ok {
			c.TotalTips = v
		}
	}
	d.mu.Unlock()

	d.metrics.TotalsRefreshed(failures == 0)
	d.logger.Debug("Creator totals refreshed", zap.Int("creators", len(addrs)), zap.Int("failures", failures))
	d.saveSnapshot(ctx)
}

func (d *Directory) refreshJob(ctx context.Context) {
	d.RefreshTotals(ctx)
}

// StartRefresh refreshes totals now and then on every interval. It does
// nothing while the directory is empty.
func (d *Directory) StartRefresh(ctx context.Context) {
	if d.task == nil || d.Len() == 0 {
		return
	}
	if d.task.Start() {
		d.RefreshTotals(ctx)
	}
}

func (d *Directory) StopRefresh() {
	if d.task != nil {
		d.task.Stop()
	}
}

func (d *Directory) Refreshing() bool {
	return d.task != nil && d.task.Running()
}

func (d *Directory) saveSnapshot(ctx context.Context) {
	if d.snapshot == nil {
		return
	}
	d.mu.RLock()
	list := make([]*domain.Creator, len(d.creators))
	for i, c := range d.creators {
		cp := *c
		list[i] = &cp
	}
	d.mu.RUnlock()

	if err := d.snapshot.SaveCreators(ctx, list); err != nil {
		d.logger.Warn("Failed to save creator snapshot", zap.Error(err))
	}
}
