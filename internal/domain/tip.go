// Package domain holds the records shared by the ledger, the directory and
// the stores: tips, creators, wallet state and the error taxonomy.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type TipStatus string

const (
	TipPending   TipStatus = "pending"
	TipConfirmed TipStatus = "confirmed"
	TipFailed    TipStatus = "failed"
)

// PendingTxHash marks a tip whose transaction hash is not known.
const PendingTxHash = "pending"

func (s TipStatus) Terminal() bool {
	return s == TipConfirmed || s == TipFailed
}

func (s TipStatus) Valid() bool {
	return s == TipPending || s.Terminal()
}

type Tip struct {
	ID             string          `json:"id"`
	Sender         string          `json:"sender"`
	Recipient      string          `json:"recipient"`
	Amount         decimal.Decimal `json:"amount"`
	Timestamp      int64           `json:"timestamp"`
	Message        string          `json:"message,omitempty"`
	TxHash         string          `json:"txHash"`
	Status         TipStatus       `json:"status"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	ReceiptErrors  int             `json:"-"`
}

// Transition moves the tip to next. Only pending -> confirmed and
// pending -> failed are allowed.
func (t *Tip) Transition(next TipStatus) error {
	if t.Status != TipPending || !next.Terminal() {
		return ErrInvalidTransition
	}
	t.Status = next
	t.ReceiptErrors = 0
	return nil
}

// Reconcilable reports whether a receipt can be fetched for the tip.
func (t *Tip) Reconcilable() bool {
	return t.Status == TipPending && t.TxHash != "" && t.TxHash != PendingTxHash
}

func (t *Tip) CreatedAt() time.Time {
	return time.UnixMilli(t.Timestamp)
}

// IdempotencyKey identifies a tip intent for duplicate detection.
func IdempotencyKey(sender, recipient string, amount decimal.Decimal, message string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join([]string{
		NormalizeAddress(sender),
		NormalizeAddress(recipient),
		amount.String(),
		message,
	}, "|")))
	return hex.EncodeToString(h.Sum(nil))
}

// TipEvent is published whenever a tip is created or changes status.
type TipEvent struct {
	Tip      Tip       `json:"tip"`
	Previous TipStatus `json:"previous,omitempty"`
}
