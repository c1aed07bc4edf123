package tipping

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/tipstark/internal/directory"
	"github.com/rovshanmuradov/tipstark/internal/domain"
	"github.com/rovshanmuradov/tipstark/internal/ledger"
	"github.com/rovshanmuradov/tipstark/internal/scheduler"
	"github.com/rovshanmuradov/tipstark/internal/store/memory"
	"github.com/rovshanmuradov/tipstark/internal/wallet"
	"github.com/rovshanmuradov/tipstark/pkg/starknet"
)

const chainID = "0x534e5f5345504f4c4941"

type stubChain struct {
	mu       sync.Mutex
	receipts map[string]starknet.ReceiptStatus
}

func (c *stubChain) BalanceOf(context.Context, string, string) (*big.Int, error) {
	return new(big.Int).Mul(big.NewInt(50), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)), nil
}

func (c *stubChain) Allowance(context.Context, string, string, string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (c *stubChain) TotalTips(context.Context, string, string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (c *stubChain) GetTransactionReceipt(_ context.Context, hash string) (*starknet.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &starknet.Receipt{TransactionHash: hash, Status: c.receipts[hash]}, nil
}

func (c *stubChain) WaitForTransaction(context.Context, string, time.Duration) error { return nil }

type stubAccount struct{ address string }

func (a stubAccount) Address() string { return a.address }
func (a stubAccount) ChainID() string { return chainID }
func (a stubAccount) Execute(context.Context, []starknet.Call) (string, error) {
	return "0xfeed", nil
}

// subjectConnector derives a distinct account from each session subject.
type subjectConnector struct{}

func (subjectConnector) ID() string { return "stub" }
func (subjectConnector) Enable(_ context.Context, subject string) (wallet.Account, error) {
	addrs := map[string]string{"alice": "0xa11ce", "bob": "0xb0b", "tab1": "0xa11ce", "tab2": "0xa11ce"}
	return stubAccount{address: addrs[subject]}, nil
}

// fixedConnector hands every session the same account.
type fixedConnector struct{ id, address string }

func (c fixedConnector) ID() string { return c.id }
func (c fixedConnector) Enable(context.Context, string) (wallet.Account, error) {
	return stubAccount{address: c.address}, nil
}

func newManager(t *testing.T) (*Manager, *stubChain, *memory.Store) {
	t.Helper()
	chain := &stubChain{receipts: make(map[string]starknet.ReceiptStatus)}
	st := memory.New()
	sched := scheduler.New(nil)
	dir := directory.New(directory.Config{TipContract: "0xc0c0"}, chain, st, nil, sched, nil, nil)
	require.NoError(t, dir.Load(context.Background(), []*domain.Creator{{Address: "0xb0b", Name: "Bob"}}))

	m := NewManager(Config{
		Wallet: wallet.Config{ChainID: chainID, TokenAddress: "0x7070", TokenDecimals: 18},
		Ledger: ledger.Config{TipContract: "0xc0c0", TokenAddress: "0x7070", TokenDecimals: 18},
	}, Deps{
		Chain:     chain,
		Registry:  wallet.NewRegistry(subjectConnector{}, fixedConnector{id: "carol", address: "0xca401"}),
		Store:     st,
		Directory: dir,
		Scheduler: sched,
	})
	t.Cleanup(m.CloseAll)
	return m, chain, st
}

func TestManager_OpenGetClose(t *testing.T) {
	m, _, _ := newManager(t)

	a := m.Open("alice")
	assert.Same(t, a, m.Open("alice"))
	assert.Equal(t, 1, m.Len())

	got, err := m.Get("alice")
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = m.Get("nobody")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	m.Close("alice")
	m.Close("alice")
	assert.Equal(t, 0, m.Len())
	assert.NotSame(t, a, m.Open("alice"))
}

func TestManager_TipFlowPublishesEvents(t *testing.T) {
	m, chain, st := newManager(t)
	ctx := context.Background()

	s := m.Open("alice")
	events, unsubscribe := m.Hub().Subscribe("alice")
	defer unsubscribe()

	require.NoError(t, s.Connect(ctx, "stub"))
	assert.Equal(t, "0xa11ce", s.Wallet.State().Address)

	tip, err := s.Ledger.SubmitTip(ctx, "0xb0b", decimal.NewFromInt(5), "thanks")
	require.NoError(t, err)

	ev := <-events
	assert.Equal(t, tip.ID, ev.Tip.ID)
	assert.Equal(t, domain.TipPending, ev.Tip.Status)

	chain.mu.Lock()
	chain.receipts[tip.TxHash] = starknet.StatusAcceptedOnL2
	chain.mu.Unlock()

	_, err = s.Ledger.Reconcile(ctx)
	require.NoError(t, err)

	ev = <-events
	assert.Equal(t, domain.TipConfirmed, ev.Tip.Status)

	bob, err := m.Directory().Get("0xb0b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), bob.TipCount)

	remote, err := st.GetProfile(ctx, "0xb0b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), remote.TipCount)

	stats := m.Stats("alice")
	assert.Equal(t, int64(1), stats.TotalTips)
	assert.Equal(t, 1, stats.TotalCreators)
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	a := m.Open("alice")
	b := m.Open("bob")
	require.NoError(t, a.Connect(ctx, "stub"))
	require.NoError(t, b.Connect(ctx, "stub"))

	_, err := a.Ledger.SubmitTip(ctx, "0xb0b", decimal.NewFromInt(1), "")
	require.NoError(t, err)

	assert.Len(t, a.Ledger.Tips(), 1)
	assert.Empty(t, b.Ledger.Tips())

	// bob cannot tip himself
	_, err = b.Ledger.SubmitTip(ctx, "0xB0B", decimal.NewFromInt(1), "")
	assert.ErrorIs(t, err, domain.ErrSelfTip)
}

func TestManager_SameWalletSessionsCountTipOnce(t *testing.T) {
	m, chain, st := newManager(t)
	ctx := context.Background()

	tab1 := m.Open("tab1")
	tab2 := m.Open("tab2")
	require.NoError(t, tab1.Connect(ctx, "stub"))

	tip, err := tab1.Ledger.SubmitTip(ctx, "0xb0b", decimal.NewFromInt(5), "")
	require.NoError(t, err)

	require.NoError(t, tab2.Connect(ctx, "stub"))
	assert.Equal(t, tab1.Wallet.State().Address, tab2.Wallet.State().Address)
	require.Len(t, tab2.Ledger.Tips(), 1)

	// the same intent from the other tab is a duplicate
	_, err = tab2.Ledger.SubmitTip(ctx, "0xb0b", decimal.NewFromInt(5), "")
	assert.ErrorIs(t, err, domain.ErrDuplicateSubmission)

	chain.mu.Lock()
	chain.receipts[tip.TxHash] = starknet.StatusAcceptedOnL2
	chain.mu.Unlock()

	_, err = tab1.Ledger.Reconcile(ctx)
	require.NoError(t, err)
	_, err = tab2.Ledger.Reconcile(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.TipConfirmed, tab1.Ledger.Tips()[0].Status)
	assert.Equal(t, domain.TipConfirmed, tab2.Ledger.Tips()[0].Status)

	bob, err := m.Directory().Get("0xb0b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), bob.TipCount)

	remote, err := st.GetProfile(ctx, "0xb0b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), remote.TipCount)
}

func TestManager_ReconnectToOtherAddressReplacesTips(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	s := m.Open("alice")
	require.NoError(t, s.Connect(ctx, "stub"))
	_, err := s.Ledger.SubmitTip(ctx, "0xb0b", decimal.NewFromInt(1), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Stats("alice").TotalTips)

	require.NoError(t, s.Connect(ctx, "carol"))
	assert.Equal(t, "0xca401", s.Wallet.State().Address)
	assert.Empty(t, s.Ledger.Tips())
	assert.Equal(t, int64(0), m.Stats("alice").TotalTips)

	require.NoError(t, s.Connect(ctx, "stub"))
	tips := s.Ledger.Tips()
	require.Len(t, tips, 1)
	assert.Equal(t, "0xa11ce", tips[0].Sender)
}

func TestManager_CloseDropsSubscribers(t *testing.T) {
	m, _, _ := newManager(t)
	m.Open("alice")
	events, unsubscribe := m.Hub().Subscribe("alice")

	m.Close("alice")
	_, open := <-events
	assert.False(t, open)
	unsubscribe()
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	_, unsubscribe := h.Subscribe("k")
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			h.Publish("k", domain.TipEvent{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}
