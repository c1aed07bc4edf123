// internal/db/models.go
package db

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/tipstark/internal/domain"
)

type Tip struct {
	ID             string          `gorm:"primaryKey"`
	Sender         string          `gorm:"index:idx_tips_sender_timestamp,priority:1"`
	Recipient      string
	Amount         decimal.Decimal `gorm:"type:numeric(78,18)"`
	Timestamp      int64           `gorm:"index:idx_tips_sender_timestamp,priority:2,sort:desc"`
	Message        string
	TxHash         string
	Status         string
	IdempotencyKey string
}

func (Tip) TableName() string { return "tips" }

type Profile struct {
	Address   string `gorm:"primaryKey"`
	Name      string
	Avatar    string
	Bio       string
	Category  string
	TotalTips decimal.Decimal `gorm:"type:numeric(78,18)"`
	TipCount  int64
	Verified  bool
	Twitter   string
	GitHub    string `gorm:"column:github"`
	Website   string
	UpdatedAt time.Time
}

func (Profile) TableName() string { return "profiles" }

func tipFromDomain(t *domain.Tip) *Tip {
	return &Tip{
		ID:             t.ID,
		Sender:         t.Sender,
		Recipient:      t.Recipient,
		Amount:         t.Amount,
		Timestamp:      t.Timestamp,
		Message:        t.Message,
		TxHash:         t.TxHash,
		Status:         string(t.Status),
		IdempotencyKey: t.IdempotencyKey,
	}
}

func (t *Tip) toDomain() *domain.Tip {
	return &domain.Tip{
		ID:             t.ID,
		Sender:         t.Sender,
		Recipient:      t.Recipient,
		Amount:         t.Amount,
		Timestamp:      t.Timestamp,
		Message:        t.Message,
		TxHash:         t.TxHash,
		Status:         domain.TipStatus(t.Status),
		IdempotencyKey: t.IdempotencyKey,
	}
}

func profileFromDomain(c *domain.Creator) *Profile {
	return &Profile{
		Address:   domain.NormalizeAddress(c.Address),
		Name:      c.Name,
		Avatar:    c.Avatar,
		Bio:       c.Bio,
		Category:  string(c.Category),
		TotalTips: c.TotalTips,
		TipCount:  c.TipCount,
		Verified:  c.Verified,
		Twitter:   c.Social.Twitter,
		GitHub:    c.Social.GitHub,
		Website:   c.Social.Website,
	}
}

func (p *Profile) toDomain() *domain.Creator {
	return &domain.Creator{
		ID:        p.Address,
		Address:   p.Address,
		Name:      p.Name,
		Avatar:    p.Avatar,
		Bio:       p.Bio,
		Category:  domain.Category(p.Category),
		TotalTips: p.TotalTips,
		TipCount:  p.TipCount,
		Verified:  p.Verified,
		Social: domain.Social{
			Twitter: p.Twitter,
			GitHub:  p.GitHub,
			Website: p.Website,
		},
	}
}
