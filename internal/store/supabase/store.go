package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tipstark/internal/domain"
	"github.com/rovshanmuradov/tipstark/internal/store"
)

const (
	tipsTable     = "tips"
	profilesTable = "profiles"

	incrementTipCountFn = "increment_tip_count"

	// PostgREST / Postgres codes.
	codeUniqueViolation = "23505"
	codeNoRows          = "PGRST116"
)

type tipRow struct {
	ID             string          `json:"id"`
	Sender         string          `json:"sender"`
	Recipient      string          `json:"recipient"`
	Amount         decimal.Decimal `json:"amount"`
	Timestamp      int64           `json:"timestamp"`
	Message        string          `json:"message"`
	TxHash         string          `json:"tx_hash"`
	Status         string          `json:"status"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

type profileRow struct {
	Address   string          `json:"address"`
	Name      string          `json:"name"`
	Avatar    string          `json:"avatar"`
	Bio       string          `json:"bio"`
	Category  string          `json:"category"`
	TotalTips decimal.Decimal `json:"total_tips"`
	TipCount  int64           `json:"tip_count"`
	Verified  bool            `json:"verified"`
	Twitter   string          `json:"twitter"`
	GitHub    string          `json:"github"`
	Website   string          `json:"website"`
}

func toTipRow(t *domain.Tip) tipRow {
	return tipRow{
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

func (r tipRow) toDomain() *domain.Tip {
	return &domain.Tip{
		ID:             r.ID,
		Sender:         r.Sender,
		Recipient:      r.Recipient,
		Amount:         r.Amount,
		Timestamp:      r.Timestamp,
		Message:        r.Message,
		TxHash:         r.TxHash,
		Status:         domain.TipStatus(r.Status),
		IdempotencyKey: r.IdempotencyKey,
	}
}

func toProfileRow(c *domain.Creator) profileRow {
	return profileRow{
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

func (r profileRow) toDomain() *domain.Creator {
	return &domain.Creator{
		ID:        r.Address,
		Address:   r.Address,
		Name:      r.Name,
		Avatar:    r.Avatar,
		Bio:       r.Bio,
		Category:  domain.Category(r.Category),
		TotalTips: r.TotalTips,
		TipCount:  r.TipCount,
		Verified:  r.Verified,
		Social: domain.Social{
			Twitter: r.Twitter,
			GitHub:  r.GitHub,
			Website: r.Website,
		},
	}
}

// Store is the Supabase-backed RemoteStore.
type Store struct {
	client *Client
	logger *zap.Logger
}

var _ store.RemoteStore = (*Store)(nil)

func NewStore(client *Client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, logger: logger}
}

// mapError converts transport and API failures into store errors.
func mapError(op string, resp *Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	apiErr := resp.Error()
	if apiErr == nil {
		return nil
	}
	var e *APIError
	if errors.As(apiErr, &e) {
		switch {
		case e.Code == codeUniqueViolation || e.StatusCode == http.StatusConflict:
			return fmt.Errorf("%s: %w", op, store.ErrDuplicateKey)
		case e.Code == codeNoRows || e.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, store.ErrNotFound)
		case e.StatusCode == http.StatusBadRequest:
			return fmt.Errorf("%s: %w: %v", op, store.ErrInvalidInput, e)
		}
	}
	return fmt.Errorf("%s: %w", op, apiErr)
}

func (s *Store) CreateTip(ctx context.Context, tip *domain.Tip) error {
	if tip == nil || tip.ID == "" {
		return store.ErrInvalidInput
	}
	resp, err := s.client.From(tipsTable).ExecuteInsert(ctx, toTipRow(tip))
	return mapError("create tip", resp, err)
}

func (s *Store) UpdateTipStatus(ctx context.Context, id string, status domain.TipStatus) error {
	if !status.Valid() {
		return store.ErrInvalidInput
	}
	resp, err := s.client.From(tipsTable).
		Eq("id", id).
		Eq("status", string(domain.TipPending)).
		ExecuteUpdate(ctx, map[string]string{"status": string(status)})
	if err := mapError("update tip status", resp, err); err != nil {
		return err
	}

	var rows []tipRow
	if err := resp.JSON(&rows); err != nil {
		return fmt.Errorf("update tip status: decode: %w", err)
	}
	if len(rows) > 0 {
		return nil
	}

	// Nothing matched: either the id is unknown or the tip already left pending.
	resp, err = s.client.From(tipsTable).Select("id").Eq("id", id).Execute(ctx)
	if err := mapError("update tip status", resp, err); err != nil {
		return err
	}
	if err := resp.JSON(&rows); err != nil {
		return fmt.Errorf("update tip status: decode: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("update tip status %s: %w", id, store.ErrNotFound)
	}
	return fmt.Errorf("update tip status %s: %w", id, store.ErrStatusConflict)
}

func (s *Store) ListTips(ctx context.Context, q store.TipQuery) ([]*domain.Tip, error) {
	qb := s.client.From(tipsTable).Select("*")
	if q.Sender != "" {
		qb = qb.Eq("sender", domain.NormalizeAddress(q.Sender))
	}
	resp, err := qb.Order("timestamp", false).Limit(q.EffectiveLimit()).Execute(ctx)
	if err := mapError("list tips", resp, err); err != nil {
		return nil, err
	}

	var rows []tipRow
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("list tips: decode: %w", err)
	}
	tips := make([]*domain.Tip, 0, len(rows))
	for _, r := range rows {
		tips = append(tips, r.toDomain())
	}
	return tips, nil
}

func (s *Store) GetProfile(ctx context.Context, address string) (*domain.Creator, error) {
	resp, err := s.client.From(profilesTable).
		Select("*").
		Eq("address", domain.NormalizeAddress(address)).
		Limit(1).
		Execute(ctx)
	if err := mapError("get profile", resp, err); err != nil {
		return nil, err
	}

	var rows []profileRow
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("get profile: decode: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0].toDomain(), nil
}

func (s *Store) UpsertProfile(ctx context.Context, c *domain.Creator) error {
	if c == nil || c.Address == "" {
		return store.ErrInvalidInput
	}
	resp, err := s.client.From(profilesTable).
		Upsert("address").
		ExecuteInsert(ctx, toProfileRow(c))
	return mapError("upsert profile", resp, err)
}

func (s *Store) ListProfiles(ctx context.Context) ([]*domain.Creator, error) {
	resp, err := s.client.From(profilesTable).Select("*").Order("address", true).Execute(ctx)
	if err := mapError("list profiles", resp, err); err != nil {
		return nil, err
	}

	var rows []profileRow
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("list profiles: decode: %w", err)
	}
	creators := make([]*domain.Creator, 0, len(rows))
	for _, r := range rows {
		creators = append(creators, r.toDomain())
	}
	return creators, nil
}

// IncrementTipCount calls the increment_tip_count function, which returns
// the number of rows it touched.
func (s *Store) IncrementTipCount(ctx context.Context, address string) error {
	resp, err := s.client.RPC(ctx, incrementTipCountFn, map[string]string{
		"p_address": domain.NormalizeAddress(address),
	})
	if err := mapError("increment tip count", resp, err); err != nil {
		return err
	}

	var touched int
	if err := resp.JSON(&touched); err != nil {
		s.logger.Debug("increment_tip_count returned no row count", zap.ByteString("body", resp.Body))
		return nil
	}
	if touched == 0 {
		return fmt.Errorf("increment tip count %s: %w", address, store.ErrNotFound)
	}
	return nil
}
