package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/tipstark/internal/domain"
)

const historyLimit = 10

var errTipUsage = errors.New("usage: <address> <amount> [message]")

// parseTipArgs splits "<address> <amount> [message...]".
func parseTipArgs(input string) (recipient string, amount decimal.Decimal, message string, err error) {
	fields := strings.Fields(input)
	if len(fields) < 2 {
		return "", decimal.Zero, "", errTipUsage
	}
	amount, err = decimal.NewFromString(fields[1])
	if err != nil {
		return "", decimal.Zero, "", fmt.Errorf("invalid amount %q", fields[1])
	}
	return fields[0], amount, strings.Join(fields[2:], " "), nil
}

func formatTip(t domain.Tip) string {
	s := fmt.Sprintf("%s to %s [%s]", t.Amount.String(), domain.ShortAddress(t.Recipient), t.Status)
	if t.Message != "" {
		s += fmt.Sprintf(" %q", t.Message)
	}
	return s
}

func formatTipEvent(ev domain.TipEvent) string {
	switch ev.Tip.Status {
	case domain.TipConfirmed:
		return "Your tip was confirmed: " + formatTip(ev.Tip)
	case domain.TipFailed:
		return "Your tip failed: " + formatTip(ev.Tip)
	default:
		return "Tip update: " + formatTip(ev.Tip)
	}
}

func formatHistory(tips []domain.Tip) string {
	if len(tips) == 0 {
		return "You have no tips yet."
	}
	var sb strings.Builder
	sb.WriteString("Your recent tips:\n\n")
	for i, t := range tips {
		if i == historyLimit {
			break
		}
		fmt.Fprintf(&sb, "%s\n%s\n\n", formatTip(t), time.UnixMilli(t.Timestamp).UTC().Format("02.01.2006 15:04:05"))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatCreators(creators []domain.Creator) string {
	if len(creators) == 0 {
		return "No creators found."
	}
	var sb strings.Builder
	for _, c := range creators {
		name := c.Name
		if c.Verified {
			name += " ✓"
		}
		fmt.Fprintf(&sb, "%s (%s)\n%s\nTips: %s total, %d confirmed\n\n", name, c.Category, c.Address, c.TotalTips.String(), c.TipCount)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatStats(s domain.Stats) string {
	top := s.TopCreator
	if top == "" {
		top = "-"
	}
	return fmt.Sprintf("Creators: %d\nTotal tipped: %s\nTop creator: %s\nYour tips: %d",
		s.TotalCreators, s.TotalAmount.String(), top, s.TotalTips)
}
