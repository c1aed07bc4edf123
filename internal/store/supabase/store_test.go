package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/tipstark/internal/domain"
	"github.com/rovshanmuradov/tipstark/internal/store"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) *Store {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{URL: server.URL + "/", APIKey: "anon-key"})
	require.NoError(t, err)
	return NewStore(client, nil)
}

func TestNewClientRequiresConfig(t *testing.T) {
	_, err := NewClient(Config{APIKey: "k"})
	assert.Error(t, err)
	_, err = NewClient(Config{URL: "http://x"})
	assert.Error(t, err)
}

func TestStore_CreateTip(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/tips", r.URL.Path)
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

		var row map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&row))
		assert.Equal(t, "tip-1", row["id"])
		assert.Equal(t, "0xtx", row["tx_hash"])
		assert.Equal(t, "pending", row["status"])
		assert.Equal(t, "25", row["amount"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[]`))
	})

	err := s.CreateTip(context.Background(), &domain.Tip{
		ID:     "tip-1",
		Sender: "0xaa",
		Amount: decimal.NewFromInt(25),
		TxHash: "0xtx",
		Status: domain.TipPending,
	})
	require.NoError(t, err)
}

func TestStore_CreateTipDuplicate(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint"}`))
	})

	err := s.CreateTip(context.Background(), &domain.Tip{ID: "tip-1"})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestStore_ListTips(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "eq.0xaa", q.Get("sender"))
		assert.Equal(t, "timestamp.desc", q.Get("order"))
		assert.Equal(t, "50", q.Get("limit"))

		_, _ = w.Write([]byte(`[
			{"id":"b","sender":"0xaa","recipient":"0xcc","amount":"1.5","timestamp":2000,"tx_hash":"0x2","status":"confirmed"},
			{"id":"a","sender":"0xaa","recipient":"0xcc","amount":"3","timestamp":1000,"tx_hash":"0x1","status":"pending"}
		]`))
	})

	tips, err := s.ListTips(context.Background(), store.TipQuery{Sender: "0xAA"})
	require.NoError(t, err)
	require.Len(t, tips, 2)
	assert.Equal(t, "b", tips[0].ID)
	assert.Equal(t, domain.TipConfirmed, tips[0].Status)
	assert.True(t, tips[0].Amount.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, "0x1", tips[1].TxHash)
}

func TestStore_UpdateTipStatus(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.Method == http.MethodGet {
			assert.Equal(t, "id", q.Get("select"))
			if q.Get("id") == "eq.tip-done" {
				_, _ = w.Write([]byte(`[{"id":"tip-done"}]`))
				return
			}
			_, _ = w.Write([]byte(`[]`))
			return
		}

		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq.pending", q.Get("status"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"status":"failed"}`, string(body))

		if q.Get("id") != "eq.tip-1" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":"tip-1","status":"failed"}]`))
	})

	ctx := context.Background()
	require.NoError(t, s.UpdateTipStatus(ctx, "tip-1", domain.TipFailed))
	assert.ErrorIs(t, s.UpdateTipStatus(ctx, "tip-done", domain.TipFailed), store.ErrStatusConflict)
	assert.ErrorIs(t, s.UpdateTipStatus(ctx, "missing", domain.TipFailed), store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateTipStatus(ctx, "tip-1", "bogus"), store.ErrInvalidInput)
}

func TestStore_UpsertProfile(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/profiles", r.URL.Path)
		assert.Equal(t, "address", r.URL.Query().Get("on_conflict"))
		assert.Equal(t, "resolution=merge-duplicates,return=representation", r.Header.Get("Prefer"))

		var row profileRow
		require.NoError(t, json.NewDecoder(r.Body).Decode(&row))
		assert.Equal(t, "0xabc", row.Address)
		assert.Equal(t, "Alice", row.Name)
		assert.Equal(t, "@alice", row.Twitter)
		w.WriteHeader(http.StatusCreated)
	})

	err := s.UpsertProfile(context.Background(), &domain.Creator{
		Address: "0xABC",
		Name:    "Alice",
		Social:  domain.Social{Twitter: "@alice"},
	})
	require.NoError(t, err)
}

func TestStore_GetProfile(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("address") == "eq.0xabc" {
			_, _ = w.Write([]byte(`[{"address":"0xabc","name":"Alice","category":"Developer","tip_count":4,"total_tips":"12.5","verified":true}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	ctx := context.Background()
	c, err := s.GetProfile(ctx, "0xABC")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", c.ID)
	assert.Equal(t, int64(4), c.TipCount)
	assert.True(t, c.Verified)
	assert.Equal(t, domain.CategoryDeveloper, c.Category)

	_, err = s.GetProfile(ctx, "0xdef")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_IncrementTipCount(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/increment_tip_count", r.URL.Path)
		var params map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		if params["p_address"] == "0xabc" {
			_, _ = w.Write([]byte(`1`))
			return
		}
		_, _ = w.Write([]byte(`0`))
	})

	ctx := context.Background()
	require.NoError(t, s.IncrementTipCount(ctx, "0xABC"))
	assert.ErrorIs(t, s.IncrementTipCount(ctx, "0xdef"), store.ErrNotFound)
}

func TestStore_ServerError(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	})

	_, err := s.ListProfiles(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "boom", apiErr.Message)
}
