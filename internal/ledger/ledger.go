// Package ledger owns a session's tips: it submits them on chain, mirrors
// them to the remote store and reconciles pending tips against receipts.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tipstark/internal/domain"
	"github.com/rovshanmuradov/tipstark/internal/metrics"
	"github.com/rovshanmuradov/tipstark/internal/scheduler"
	"github.com/rovshanmuradov/tipstark/internal/store"
	"github.com/rovshanmuradov/tipstark/internal/wallet"
	"github.com/rovshanmuradov/tipstark/pkg/starknet"
)

// ReceiptErrorPolicy decides what a failed receipt fetch does to a tip.
type ReceiptErrorPolicy string

const (
	// PolicyRetry leaves the tip pending until a receipt is obtained.
	PolicyRetry ReceiptErrorPolicy = "retry"
	// PolicyFailAfter fails the tip after MaxReceiptErrors consecutive errors.
	PolicyFailAfter ReceiptErrorPolicy = "fail-after"
)

const (
	DefaultReconcileInterval = 10 * time.Second
	DefaultDedupeWindow      = 30 * time.Second
	DefaultMaxReceiptErrors  = 5
	defaultFetchConcurrency  = 8
	defaultApprovalPoll      = 2 * time.Second
	defaultApprovalTimeout   = 3 * time.Minute
	defaultCallTimeout       = 30 * time.Second
)

// Chain is the part of the chain client the ledger needs.
type Chain interface {
	Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error)
	GetTransactionReceipt(ctx context.Context, hash string) (*starknet.Receipt, error)
	WaitForTransaction(ctx context.Context, hash string, pollInterval time.Duration) error
}

// Wallet is the session the ledger submits from.
type Wallet interface {
	State() domain.WalletState
	Account() (wallet.Account, error)
	RefreshBalance(ctx context.Context) error
	Debit(amount decimal.Decimal)
}

// TipCounter records a confirmed tip against its recipient.
type TipCounter interface {
	IncrementTipCount(ctx context.Context, address string) error
}

// Snapshot persists the tip list locally.
type Snapshot interface {
	SaveTips(ctx context.Context, sender string, tips []*domain.Tip) error
	LoadTips(ctx context.Context, sender string) ([]*domain.Tip, error)
}

type Config struct {
	TipContract        string
	TokenAddress       string
	TokenDecimals      int32
	RequireAllowance   bool
	ReconcileInterval  time.Duration
	ReceiptErrorPolicy ReceiptErrorPolicy
	MaxReceiptErrors   int
	DedupeWindow       time.Duration
	FetchConcurrency   int
	ApprovalPoll       time.Duration
	ApprovalTimeout    time.Duration
	CallTimeout        time.Duration
}

func (c *Config) applyDefaults() {
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = DefaultReconcileInterval
	}
	if c.ReceiptErrorPolicy == "" {
		c.ReceiptErrorPolicy = PolicyRetry
	}
	if c.MaxReceiptErrors <= 0 {
		c.MaxReceiptErrors = DefaultMaxReceiptErrors
	}
	if c.DedupeWindow <= 0 {
		c.DedupeWindow = DefaultDedupeWindow
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = defaultFetchConcurrency
	}
	if c.ApprovalPoll <= 0 {
		c.ApprovalPoll = defaultApprovalPoll
	}
	if c.ApprovalTimeout <= 0 {
		c.ApprovalTimeout = defaultApprovalTimeout
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
}

// Deps are the collaborators of a Ledger. Creators, Snapshot, Scheduler,
// Reservations, Metrics and Notify are optional. Ledgers that may act for
// the same wallet should share one Reservations.
type Deps struct {
	Chain        Chain
	Wallet       Wallet
	Store        store.RemoteStore
	Creators     TipCounter
	Snapshot     Snapshot
	Scheduler    *scheduler.Scheduler
	Reservations *Reservations
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	Notify       func(domain.TipEvent)
}

type Ledger struct {
	cfg      Config
	chain    Chain
	wallet   Wallet
	store    store.RemoteStore
	creators TipCounter
	snapshot Snapshot
	logger   *zap.Logger
	metrics  *metrics.Metrics
	notify   func(domain.TipEvent)
	reserved *Reservations

	// taskMu serializes the pending scan with starting or stopping task.
	taskMu sync.Mutex
	task   *scheduler.Task

	now   func() time.Time
	newID func() string

	mu     sync.Mutex
	sender string
	tips   []*domain.Tip // most recent first
}

func New(cfg Config, deps Deps) *Ledger {
	cfg.applyDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reserved := deps.Reservations
	if reserved == nil {
		reserved = NewReservations()
	}
	l := &Ledger{
		cfg:      cfg,
		chain:    deps.Chain,
		wallet:   deps.Wallet,
		store:    deps.Store,
		creators: deps.Creators,
		snapshot: deps.Snapshot,
		logger:   logger,
		metrics:  deps.Metrics,
		notify:   deps.Notify,
		now:      time.Now,
		newID:    uuid.NewString,
		reserved: reserved,
	}
	if deps.Scheduler != nil {
		l.task = deps.Scheduler.NewTask("reconcile", cfg.ReconcileInterval, l.reconcileJob)
	}
	return l
}

// Tips returns a copy of the ledger, most recent first.
func (l *Ledger) Tips() []domain.Tip {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Tip, len(l.tips))
	for i, t := range l.tips {
		out[i] = *t
	}
	return out
}

// Reconciling reports whether the reconciliation task is scheduled.
func (l *Ledger) Reconciling() bool {
	return l.task != nil && l.task.Running()
}

// Close stops the reconciliation task.
func (l *Ledger) Close() {
	if l.task == nil {
		return
	}
	l.taskMu.Lock()
	l.task.Stop()
	l.taskMu.Unlock()
}

func (l *Ledger) reconcileJob(ctx context.Context) {
	if _, err := l.Reconcile(ctx); err != nil {
		l.logger.Debug("Reconciliation pass finished with errors", zap.Error(err))
	}
}

// ensureReconciling starts or stops the task depending on whether any tip
// can still be reconciled.
func (l *Ledger) ensureReconciling() {
	if l.task == nil {
		return
	}
	l.taskMu.Lock()
	defer l.taskMu.Unlock()

	l.mu.Lock()
	active := false
	for _, t := range l.tips {
		if t.Reconcilable() {
			active = true
			break
		}
	}
	l.mu.Unlock()

	if active {
		if l.task.Start() {
			l.logger.Debug("Reconciliation started")
		}
		return
	}
	if l.task.Running() {
		l.task.Stop()
		l.logger.Debug("Reconciliation stopped, no pending tips")
	}
}

func (l *Ledger) publish(tip domain.Tip, previous domain.TipStatus) {
	if l.notify != nil {
		l.notify(domain.TipEvent{Tip: tip, Previous: previous})
	}
}

func (l *Ledger) saveSnapshot(ctx context.Context, sender string) {
	if l.snapshot == nil || sender == "" {
		return
	}
	l.mu.Lock()
	tips := make([]*domain.Tip, 0, len(l.tips))
	for _, t := range l.tips {
		if t.Sender == sender {
			c := *t
			tips = append(tips, &c)
		}
	}
	l.mu.Unlock()

	if err := l.snapshot.SaveTips(ctx, sender, tips); err != nil {
		l.logger.Warn("Failed to save tip snapshot", zap.Error(err))
	}
}

// Hydrate merges the local snapshot and the remote store's recent tips of
// sender into the ledger. Tips already known locally keep their state unless
// the remote copy has reached a terminal status. Tips of any other sender
// are dropped from the ledger; they stay in the store and snapshot.
func (l *Ledger) Hydrate(ctx context.Context, sender string) error {
	sender = domain.NormalizeAddress(sender)
	l.switchSender(sender)

	if l.snapshot != nil {
		cached, err := l.snapshot.LoadTips(ctx, sender)
		if err == nil {
			l.merge(cached)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
	defer cancel()
	remote, err := l.store.ListTips(callCtx, store.TipQuery{Sender: sender, Limit: store.DefaultTipLimit})
	if err != nil {
		l.ensureReconciling()
		return fmt.Errorf("list tips: %w", err)
	}
	l.merge(remote)
	l.ensureReconciling()
	l.saveSnapshot(ctx, sender)
	return nil
}

func (l *Ledger) switchSender(sender string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sender == sender {
		return
	}
	kept := make([]*domain.Tip, 0, len(l.tips))
	for _, t := range l.tips {
		if t.Sender == sender {
			kept = append(kept, t)
		}
	}
	if dropped := len(l.tips) - len(kept); dropped > 0 {
		l.logger.Debug("Dropped tips of previous sender", zap.String("previous", l.sender), zap.Int("count", dropped))
	}
	l.sender = sender
	l.tips = kept
}

func (l *Ledger) merge(incoming []*domain.Tip) {
	if len(incoming) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	byID := make(map[string]*domain.Tip, len(l.tips))
	for _, t := range l.tips {
		byID[t.ID] = t
	}

	next := make([]*domain.Tip, len(l.tips), len(l.tips)+len(incoming))
	copy(next, l.tips)
	for _, in := range incoming {
		if in == nil || in.ID == "" || !in.Status.Valid() {
			continue
		}
		if existing, ok := byID[in.ID]; ok {
			if existing.Status == domain.TipPending && in.Status.Terminal() {
				_ = existing.Transition(in.Status)
			}
			continue
		}
		c := *in
		c.Sender = domain.NormalizeAddress(c.Sender)
		c.Recipient = domain.NormalizeAddress(c.Recipient)
		if l.sender != "" && c.Sender != l.sender {
			continue
		}
		byID[c.ID] = &c
		next = append(next, &c)
	}

	sort.SliceStable(next, func(i, j int) bool {
		return next[i].Timestamp > next[j].Timestamp
	})
	l.tips = next
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrConnection):
		return "connection"
	case errors.Is(err, domain.ErrSubmission):
		return "submission"
	default:
		return "other"
	}
}
