package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/tipstark/internal/domain"
	"github.com/rovshanmuradov/tipstark/internal/store"
	"github.com/rovshanmuradov/tipstark/pkg/starknet"
)

// Result summarizes one reconciliation pass.
type Result struct {
	Checked   int
	Confirmed int
	Failed    int
	Errors    int
	Pending   int
}

type receiptResult struct {
	id      string
	hash    string
	receipt *starknet.Receipt
	err     error
}

type transition struct {
	tip      domain.Tip
	previous domain.TipStatus
}

// Reconcile fetches receipts for every pending tip with a known hash and
// applies the outcomes in one batch. Terminal tips are never touched.
// Receipt fetch failures are logged and returned joined; they never abort
// the pass.
func (l *Ledger) Reconcile(ctx context.Context) (Result, error) {
	start := time.Now()

	l.mu.Lock()
	targets := make([]receiptResult, 0)
	for _, t := range l.tips {
		if t.Reconcilable() {
			targets = append(targets, receiptResult{id: t.ID, hash: t.TxHash})
		}
	}
	l.mu.Unlock()

	if len(targets) == 0 {
		l.ensureReconciling()
		return Result{}, nil
	}

	l.fetchReceipts(ctx, targets)

	res, changed, errs := l.apply(targets)
	l.afterTransitions(ctx, changed)

	l.metrics.Reconciled(res.Pending, time.Since(start))
	l.logger.Debug("Reconciliation pass",
		zap.Int("checked", res.Checked),
		zap.Int("confirmed", res.Confirmed),
		zap.Int("failed", res.Failed),
		zap.Int("errors", res.Errors),
		zap.Int("pending", res.Pending),
	)

	l.ensureReconciling()
	return res, errors.Join(errs...)
}

// fetchReceipts fills in receipt or err for every target, at most
// FetchConcurrency requests at a time. No ledger lock is held.
func (l *Ledger) fetchReceipts(ctx context.Context, targets []receiptResult) {
	sem := make(chan struct{}, l.cfg.FetchConcurrency)
	var wg sync.WaitGroup
	for i := range targets {
		wg.Add(1)
		go func(r *receiptResult) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				r.err = ctx.Err()
				return
			}
			defer func() { <-sem }()

			callCtx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
			defer cancel()
			r.receipt, r.err = l.chain.GetTransactionReceipt(callCtx, r.hash)
		}(&targets[i])
	}
	wg.Wait()
}

// apply merges receipt results into the ledger under a single lock,
// mutating only status fields in place.
func (l *Ledger) apply(results []receiptResult) (Result, []transition, []error) {
	var (
		res     Result
		changed []transition
		errs    []error
	)

	l.mu.Lock()
	defer l.mu.Unlock()

	byID := make(map[string]*domain.Tip, len(l.tips))
	for _, t := range l.tips {
		byID[t.ID] = t
	}

	for _, r := range results {
		tip, ok := byID[r.id]
		if !ok || tip.Status.Terminal() {
			continue
		}
		res.Checked++

		var next domain.TipStatus
		switch {
		case r.err != nil:
			res.Errors++
			tip.ReceiptErrors++
			err := domain.Reconciliation(r.hash, r.err)
			errs = append(errs, err)
			l.metrics.ReceiptError()
			l.logger.Warn("Receipt fetch failed",
				zap.String("tipID", tip.ID),
				zap.Int("consecutiveErrors", tip.ReceiptErrors),
				zap.Error(err))
			if l.cfg.ReceiptErrorPolicy == PolicyFailAfter && tip.ReceiptErrors >= l.cfg.MaxReceiptErrors {
				next = domain.TipFailed
			}
		case r.receipt == nil:
			tip.ReceiptErrors = 0
		case r.receipt.Status.Accepted():
			tip.ReceiptErrors = 0
			next = domain.TipConfirmed
		case r.receipt.Status == starknet.StatusRejected:
			tip.ReceiptErrors = 0
			next = domain.TipFailed
		default:
			tip.ReceiptErrors = 0
		}

		if next == "" {
			continue
		}
		previous := tip.Status
		if err := tip.Transition(next); err != nil {
			continue
		}
		if next == domain.TipConfirmed {
			res.Confirmed++
		} else {
			res.Failed++
		}
		changed = append(changed, transition{tip: *tip, previous: previous})
	}

	for _, t := range l.tips {
		if t.Status == domain.TipPending {
			res.Pending++
		}
	}
	return res, changed, errs
}

// afterTransitions persists new statuses and applies their side effects:
// recipient tip counts and a sender balance refresh for confirmations.
// The store's status update is a compare-and-set; a ledger that loses it
// to another session on the same wallet does not count the tip again.
func (l *Ledger) afterTransitions(ctx context.Context, changed []transition) {
	if len(changed) == 0 {
		return
	}

	confirmed := false
	senders := make(map[string]struct{})
	for _, c := range changed {
		tip := c.tip
		logger := l.logger.With(zap.String("tipID", tip.ID), zap.String("txHash", tip.TxHash))
		logger.Info("Tip status changed", zap.String("status", string(tip.Status)))
		l.metrics.TipTransitioned(string(tip.Status))

		if tip.IdempotencyKey != "" {
			l.reserved.settle(tip.IdempotencyKey, tip.Timestamp)
		}

		callCtx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
		owner := true
		if err := l.store.UpdateTipStatus(callCtx, tip.ID, tip.Status); err != nil {
			if errors.Is(err, store.ErrStatusConflict) {
				owner = false
				logger.Debug("Tip status already recorded by another session")
			} else {
				logger.Warn("Failed to persist tip status", zap.Error(err))
			}
		}
		if tip.Status == domain.TipConfirmed {
			confirmed = true
			if owner {
				if err := l.incrementTipCount(callCtx, tip.Recipient); err != nil {
					logger.Warn("Failed to increment creator tip count", zap.String("recipient", tip.Recipient), zap.Error(err))
				}
			}
		}
		cancel()

		senders[tip.Sender] = struct{}{}
		l.publish(tip, c.previous)
	}

	if confirmed {
		if err := l.wallet.RefreshBalance(ctx); err != nil {
			l.logger.Warn("Balance refresh after confirmation failed", zap.Error(err))
		}
	}
	for sender := range senders {
		l.saveSnapshot(ctx, sender)
	}
}

func (l *Ledger) incrementTipCount(ctx context.Context, recipient string) error {
	if l.creators != nil {
		return l.creators.IncrementTipCount(ctx, recipient)
	}
	return l.store.IncrementTipCount(ctx, recipient)
}
