package ledger

import (
	"context"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tipstark/internal/domain"
	"github.com/rovshanmuradov/tipstark/internal/wallet"
	"github.com/rovshanmuradov/tipstark/pkg/starknet"
	"github.com/rovshanmuradov/tipstark/pkg/utils"
)

// SubmitTip validates the intent, grants allowance when needed, executes
// the tip transaction and records a pending tip. No tip is recorded unless
// the tip transaction was submitted.
func (l *Ledger) SubmitTip(ctx context.Context, recipient string, amount decimal.Decimal, message string) (*domain.Tip, error) {
	tip, err := l.submit(ctx, recipient, amount, message)
	if err != nil {
		l.metrics.TipRejected(errorClass(err))
		return nil, err
	}
	l.metrics.TipSubmitted()
	return tip, nil
}

func (l *Ledger) submit(ctx context.Context, recipient string, amount decimal.Decimal, message string) (*domain.Tip, error) {
	state := l.wallet.State()
	if !state.Connected {
		return nil, domain.ErrNotConnected
	}
	if !amount.IsPositive() {
		return nil, domain.ErrNonPositiveAmount
	}
	recipient, err := domain.ValidateAddress(recipient)
	if err != nil {
		return nil, err
	}
	sender := state.Address
	if domain.SameAddress(sender, recipient) {
		return nil, domain.ErrSelfTip
	}
	if amount.GreaterThan(state.Balance) {
		return nil, domain.ErrInsufficientFunds
	}

	raw := utils.ToBaseUnits(amount, l.cfg.TokenDecimals)
	if raw.Sign() <= 0 {
		return nil, domain.ErrNonPositiveAmount
	}

	message = strings.TrimSpace(message)
	key := domain.IdempotencyKey(sender, recipient, amount, message)
	if !l.reserve(key) {
		return nil, domain.ErrDuplicateSubmission
	}
	defer l.release(key)

	account, err := l.wallet.Account()
	if err != nil {
		return nil, err
	}

	logger := l.logger.With(
		zap.String("sender", sender),
		zap.String("recipient", recipient),
		zap.String("amount", amount.String()),
	)

	if l.cfg.RequireAllowance {
		if err := l.ensureAllowance(ctx, account, sender, raw, logger); err != nil {
			return nil, err
		}
	}

	hash, err := account.Execute(ctx, []starknet.Call{starknet.TipCall(l.cfg.TipContract, recipient, raw)})
	if err != nil {
		logger.Error("Tip transaction failed", zap.Error(err))
		return nil, domain.Submission("tip", err)
	}
	if hash == "" {
		hash = domain.PendingTxHash
	}

	tip := &domain.Tip{
		ID:             l.newID(),
		Sender:         sender,
		Recipient:      recipient,
		Amount:         amount,
		Timestamp:      l.now().UnixMilli(),
		Message:        message,
		TxHash:         hash,
		Status:         domain.TipPending,
		IdempotencyKey: key,
	}

	l.mu.Lock()
	l.tips = append([]*domain.Tip{tip}, l.tips...)
	l.mu.Unlock()
	l.reserved.record(key, tip.Timestamp)

	logger.Info("Tip submitted", zap.String("tipID", tip.ID), zap.String("txHash", hash))

	storeCtx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
	if err := l.store.CreateTip(storeCtx, tip); err != nil {
		// the local record stays; the store is a replica
		logger.Warn("Failed to mirror tip to remote store", zap.String("tipID", tip.ID), zap.Error(err))
	}
	cancel()

	l.wallet.Debit(amount)
	out := *tip
	l.publish(out, "")
	l.saveSnapshot(ctx, sender)
	l.ensureReconciling()
	return &out, nil
}

// reserve marks key as in flight unless an identical tip is already in
// flight, or is pending in this ledger or any ledger sharing its
// reservations and was submitted within the dedupe window.
func (l *Ledger) reserve(key string) bool {
	cutoff := l.now().Add(-l.cfg.DedupeWindow).UnixMilli()
	l.mu.Lock()
	for _, t := range l.tips {
		if t.IdempotencyKey == key && t.Status == domain.TipPending && t.Timestamp >= cutoff {
			l.mu.Unlock()
			return false
		}
	}
	l.mu.Unlock()
	return l.reserved.reserve(key, cutoff)
}

func (l *Ledger) release(key string) {
	l.reserved.release(key)
}

// ensureAllowance approves the tip contract for raw when the current
// allowance is lower, and waits for the approval to be accepted.
func (l *Ledger) ensureAllowance(ctx context.Context, account wallet.Account, sender string, raw *big.Int, logger *zap.Logger) error {
	callCtx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
	allowance, err := l.chain.Allowance(callCtx, l.cfg.TokenAddress, sender, l.cfg.TipContract)
	cancel()
	if err != nil {
		return domain.Submission("allowance", err)
	}
	if allowance.Cmp(raw) >= 0 {
		return nil
	}

	logger.Info("Allowance too low, approving", zap.String("allowance", allowance.String()))
	hash, err := account.Execute(ctx, []starknet.Call{starknet.ApproveCall(l.cfg.TokenAddress, l.cfg.TipContract, raw)})
	if err != nil {
		return domain.Submission("approve", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.cfg.ApprovalTimeout)
	defer cancel()
	if err := l.chain.WaitForTransaction(waitCtx, hash, l.cfg.ApprovalPoll); err != nil {
		return domain.Submission("approve "+hash, err)
	}
	return nil
}
