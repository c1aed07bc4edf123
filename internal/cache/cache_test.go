package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/tipstark/internal/domain"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestSnapshot_Tips(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend())

	_, err := s.LoadTips(ctx, "0xaa")
	assert.ErrorIs(t, err, ErrMiss)

	tips := []*domain.Tip{
		{ID: "b", Sender: "0xaa", Amount: decimal.RequireFromString("2.5"), Status: domain.TipPending, TxHash: "0x2"},
		{ID: "a", Sender: "0xaa", Amount: decimal.NewFromInt(1), Status: domain.TipConfirmed, TxHash: "0x1"},
	}
	require.NoError(t, s.SaveTips(ctx, "0xAA", tips))

	got, err := s.LoadTips(ctx, "0xaa")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.True(t, got[0].Amount.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, domain.TipConfirmed, got[1].Status)
}

func TestSnapshot_EncryptedCreators(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := New(backend, WithEncryption(testKey))

	creators := []*domain.Creator{{ID: "0xaa", Address: "0xaa", Name: "Alice", TipCount: 3}}
	require.NoError(t, s.SaveCreators(ctx, creators))

	raw, err := backend.Get(ctx, creatorsKey)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Alice")

	got, err := s.LoadCreators(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alice", got[0].Name)

	plain := New(backend)
	_, err = plain.LoadCreators(ctx)
	assert.Error(t, err)
}

func TestMemoryBackend_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	now = now.Add(2 * time.Minute)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}
