package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/tipstark/internal/cache"
	"github.com/rovshanmuradov/tipstark/internal/domain"
	"github.com/rovshanmuradov/tipstark/internal/scheduler"
	"github.com/rovshanmuradov/tipstark/internal/store"
	"github.com/rovshanmuradov/tipstark/internal/store/memory"
	"github.com/rovshanmuradov/tipstark/internal/wallet"
	"github.com/rovshanmuradov/tipstark/pkg/starknet"
)

const (
	testChainID  = "0x534e5f5345504f4c4941"
	testToken    = "0x7070"
	testContract = "0xc0c0"
	senderAddr   = "0xaaa1"
	creatorAddr  = "0xc0ffee"
)

var oneToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), oneToken)
}

// fakeChain is an in-memory chain: balances, allowances and receipts.
type fakeChain struct {
	mu          sync.Mutex
	balances    map[string]*big.Int
	allowances  map[string]*big.Int
	receipts    map[string]starknet.ReceiptStatus
	receiptErr  error
	allowErr    error
	waitErr     error
	calls       atomic.Int32
	receiptHits atomic.Int32
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		balances:   make(map[string]*big.Int),
		allowances: make(map[string]*big.Int),
		receipts:   make(map[string]starknet.ReceiptStatus),
	}
}

func (f *fakeChain) BalanceOf(_ context.Context, _, owner string) (*big.Int, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[owner]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) Allowance(_ context.Context, _, owner, _ string) (*big.Int, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allowErr != nil {
		return nil, f.allowErr
	}
	if a, ok := f.allowances[owner]; ok {
		return new(big.Int).Set(a), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) GetTransactionReceipt(_ context.Context, hash string) (*starknet.Receipt, error) {
	f.calls.Add(1)
	f.receiptHits.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	status, ok := f.receipts[hash]
	if !ok {
		status = starknet.StatusOther
	}
	return &starknet.Receipt{TransactionHash: hash, Status: status}, nil
}

func (f *fakeChain) WaitForTransaction(context.Context, string, time.Duration) error {
	f.calls.Add(1)
	return f.waitErr
}

func (f *fakeChain) setReceipt(hash string, status starknet.ReceiptStatus) {
	f.mu.Lock()
	f.receipts[hash] = status
	f.mu.Unlock()
}

func (f *fakeChain) setBalance(owner string, v *big.Int) {
	f.mu.Lock()
	f.balances[owner] = v
	f.mu.Unlock()
}

// fakeAccount records executed calls and hands out sequential hashes.
type fakeAccount struct {
	mu      sync.Mutex
	address string
	calls   [][]starknet.Call
	err     error
	approve error
	next    int
}

func (a *fakeAccount) Address() string { return a.address }
func (a *fakeAccount) ChainID() string { return testChainID }

func (a *fakeAccount) Execute(_ context.Context, calls []starknet.Call) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(calls) > 0 && calls[0].Entrypoint == starknet.EntrypointApprove && a.approve != nil {
		return "", a.approve
	}
	if a.err != nil {
		return "", a.err
	}
	a.calls = append(a.calls, calls)
	a.next++
	return fmt.Sprintf("0xtx%d", a.next), nil
}

func (a *fakeAccount) executed() [][]starknet.Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][]starknet.Call(nil), a.calls...)
}

type fakeConnector struct{ account *fakeAccount }

func (c *fakeConnector) ID() string { return "test" }
func (c *fakeConnector) Enable(context.Context, string) (wallet.Account, error) {
	return c.account, nil
}

type harness struct {
	chain    *fakeChain
	account  *fakeAccount
	session  *wallet.Session
	store    *memory.Store
	reserved *Reservations
	ledger   *Ledger
	events   chan domain.TipEvent
}

func newHarness(t *testing.T, balance int64, mutate func(*Config)) *harness {
	t.Helper()
	ctx := context.Background()

	chain := newFakeChain()
	chain.setBalance(senderAddr, tokens(balance))
	account := &fakeAccount{address: senderAddr}

	sched := scheduler.New(nil)
	session := wallet.NewSession("user", wallet.Config{
		ChainID:       testChainID,
		TokenAddress:  testToken,
		TokenDecimals: 18,
	}, chain, wallet.NewRegistry(&fakeConnector{account: account}), sched, nil, nil)
	require.NoError(t, session.Connect(ctx, "test"))

	st := memory.New()
	require.NoError(t, st.UpsertProfile(ctx, &domain.Creator{Address: creatorAddr, Name: "Carol"}))

	cfg := Config{
		TipContract:      testContract,
		TokenAddress:     testToken,
		TokenDecimals:    18,
		RequireAllowance: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	events := make(chan domain.TipEvent, 64)
	reserved := NewReservations()
	l := New(cfg, Deps{
		Chain:        chain,
		Wallet:       session,
		Store:        st,
		Snapshot:     cache.New(cache.NewMemoryBackend()),
		Scheduler:    sched,
		Reservations: reserved,
		Notify:       func(ev domain.TipEvent) { events <- ev },
	})
	t.Cleanup(l.Close)

	return &harness{chain: chain, account: account, session: session, store: st, reserved: reserved, ledger: l, events: events}
}

// sibling builds a second ledger for the same wallet, as another session
// on that address would have.
func (h *harness) sibling(t *testing.T) *Ledger {
	t.Helper()
	l := New(h.ledger.cfg, Deps{
		Chain:        h.chain,
		Wallet:       h.session,
		Store:        h.store,
		Scheduler:    scheduler.New(nil),
		Reservations: h.reserved,
	})
	t.Cleanup(l.Close)
	return l
}

func (h *harness) tipCount(t *testing.T) int64 {
	t.Helper()
	c, err := h.store.GetProfile(context.Background(), creatorAddr)
	require.NoError(t, err)
	return c.TipCount
}

func TestSubmitTip_EndToEndConfirm(t *testing.T) {
	h := newHarness(t, 100, nil)
	ctx := context.Background()

	tip, err := h.ledger.SubmitTip(ctx, "0xC0FFEE", decimal.NewFromInt(25), "great work")
	require.NoError(t, err)

	assert.Equal(t, domain.TipPending, tip.Status)
	assert.Equal(t, creatorAddr, tip.Recipient)
	assert.Equal(t, senderAddr, tip.Sender)
	assert.NotEmpty(t, tip.ID)
	assert.True(t, h.session.State().Balance.Equal(decimal.NewFromInt(75)))

	tips := h.ledger.Tips()
	require.Len(t, tips, 1)
	assert.Equal(t, tip.ID, tips[0].ID)
	assert.True(t, h.ledger.Reconciling())

	// approve then tip
	executed := h.account.executed()
	require.Len(t, executed, 2)
	assert.Equal(t, starknet.EntrypointApprove, executed[0][0].Entrypoint)
	assert.Equal(t, starknet.EntrypointTip, executed[1][0].Entrypoint)
	assert.Equal(t, []string{creatorAddr, "0x15af1d78b58c40000", "0x0"}, executed[1][0].Calldata)

	remote, err := h.store.ListTips(ctx, store.TipQuery{Sender: senderAddr})
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, domain.TipPending, remote[0].Status)

	h.chain.setReceipt(tip.TxHash, starknet.StatusAcceptedOnL2)
	h.chain.setBalance(senderAddr, tokens(75))

	res, err := h.ledger.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Confirmed)

	tips = h.ledger.Tips()
	assert.Equal(t, domain.TipConfirmed, tips[0].Status)
	assert.Equal(t, int64(1), h.tipCount(t))
	assert.True(t, h.session.State().Balance.Equal(decimal.NewFromInt(75)))
	assert.False(t, h.ledger.Reconciling())

	remote, err = h.store.ListTips(ctx, store.TipQuery{Sender: senderAddr})
	require.NoError(t, err)
	assert.Equal(t, domain.TipConfirmed, remote[0].Status)

	created := <-h.events
	assert.Equal(t, domain.TipPending, created.Tip.Status)
	confirmed := <-h.events
	assert.Equal(t, domain.TipConfirmed, confirmed.Tip.Status)
	assert.Equal(t, domain.TipPending, confirmed.Previous)
}

func TestSubmitTip_InsufficientFundsBeforeChain(t *testing.T) {
	h := newHarness(t, 10, nil)
	callsBefore := h.chain.calls.Load()

	_, err := h.ledger.SubmitTip(context.Background(), creatorAddr, decimal.NewFromInt(30), "")
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Equal(t, callsBefore, h.chain.calls.Load())
	assert.Empty(t, h.account.executed())
	assert.Empty(t, h.ledger.Tips())
}

func TestSubmitTip_ValidationFailures(t *testing.T) {
	h := newHarness(t, 100, nil)
	ctx := context.Background()

	_, err := h.ledger.SubmitTip(ctx, "0xAAA1", decimal.NewFromInt(1), "")
	assert.ErrorIs(t, err, domain.ErrSelfTip)

	_, err = h.ledger.SubmitTip(ctx, creatorAddr, decimal.Zero, "")
	assert.ErrorIs(t, err, domain.ErrNonPositiveAmount)

	_, err = h.ledger.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(-5), "")
	assert.ErrorIs(t, err, domain.ErrNonPositiveAmount)

	_, err = h.ledger.SubmitTip(ctx, creatorAddr, decimal.New(1, -19), "")
	assert.ErrorIs(t, err, domain.ErrNonPositiveAmount)

	_, err = h.ledger.SubmitTip(ctx, "not-an-address", decimal.NewFromInt(1), "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Empty(t, h.ledger.Tips())
	assert.Empty(t, h.account.executed())
	assert.False(t, h.ledger.Reconciling())
}

func TestSubmitTip_NotConnected(t *testing.T) {
	h := newHarness(t, 100, nil)
	h.session.Disconnect()

	_, err := h.ledger.SubmitTip(context.Background(), creatorAddr, decimal.NewFromInt(1), "")
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.Empty(t, h.ledger.Tips())
}

func TestSubmitTip_SubmissionFailuresCreateNoRecord(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{"allowance read", func(h *harness) { h.chain.allowErr = errors.New("rpc down") }},
		{"approve rejected", func(h *harness) { h.account.approve = errors.New("user rejected") }},
		{"approve reverted", func(h *harness) { h.chain.waitErr = starknet.ErrTransactionRejected }},
		{"tip execute", func(h *harness) { h.account.err = errors.New("nonce too low") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 100, nil)
			tt.setup(h)

			_, err := h.ledger.SubmitTip(context.Background(), creatorAddr, decimal.NewFromInt(5), "")
			require.ErrorIs(t, err, domain.ErrSubmission)

			assert.Empty(t, h.ledger.Tips())
			remote, err := h.store.ListTips(context.Background(), store.TipQuery{})
			require.NoError(t, err)
			assert.Empty(t, remote)
			assert.True(t, h.session.State().Balance.Equal(decimal.NewFromInt(100)))
		})
	}
}

func TestSubmitTip_SkipsApprovalWithAllowance(t *testing.T) {
	h := newHarness(t, 100, nil)
	h.chain.allowances[senderAddr] = tokens(50)

	_, err := h.ledger.SubmitTip(context.Background(), creatorAddr, decimal.NewFromInt(25), "")
	require.NoError(t, err)

	executed := h.account.executed()
	require.Len(t, executed, 1)
	assert.Equal(t, starknet.EntrypointTip, executed[0][0].Entrypoint)
}

func TestSubmitTip_Duplicate(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	h := newHarness(t, 100, func(c *Config) { c.RequireAllowance = false })
	h.ledger.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := h.ledger.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(1), "hi")
	require.NoError(t, err)

	_, err = h.ledger.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(1), "hi")
	assert.ErrorIs(t, err, domain.ErrDuplicateSubmission)

	// a different message is a different intent
	_, err = h.ledger.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(1), "hi again")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = h.ledger.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(1), "hi")
	require.NoError(t, err)
	assert.Len(t, h.ledger.Tips(), 3)
}

func TestSubmitTip_MostRecentFirst(t *testing.T) {
	h := newHarness(t, 100, func(c *Config) { c.RequireAllowance = false })
	ctx := context.Background()

	first, err := h.ledger.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(1), "one")
	require.NoError(t, err)
	second, err := h.ledger.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(2), "two")
	require.NoError(t, err)

	tips := h.ledger.Tips()
	require.Len(t, tips, 2)
	assert.Equal(t, second.ID, tips[0].ID)
	assert.Equal(t, first.ID, tips[1].ID)
}

func TestReconcile_RejectedDoesNotCount(t *testing.T) {
	h := newHarness(t, 100, func(c *Config) { c.RequireAllowance = false })
	ctx := context.Background()

	tip, err := h.ledger.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(5), "")
	require.NoError(t, err)
	h.chain.setReceipt(tip.TxHash, starknet.StatusRejected)

	res, err := h.ledger.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, domain.TipFailed, h.ledger.Tips()[0].Status)
	assert.Equal(t, int64(0), h.tipCount(t))
}

func TestReconcile_MonotonicAndIdempotent(t *testing.T) {
	h := newHarness(t, 100, func(c *Config) { c.RequireAllowance = false })
	ctx := context.Background()

	a, err := h.ledger.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(1), "a")
	require.NoError(t, err)
	b, err := h.ledger.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(2), "b")
	require.NoError(t, err)
	c, err := h.ledger.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(3), "c")
	require.NoError(t, err)

	h.chain.setReceipt(a.TxHash, starknet.StatusAcceptedOnL1)
	h.chain.setReceipt(b.TxHash, starknet.StatusRejected)

	_, err = h.ledger.Reconcile(ctx)
	require.NoError(t, err)
	after := h.ledger.Tips()
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, []string{after[0].ID, after[1].ID, after[2].ID})
	assert.Equal(t, domain.TipPending, after[0].Status)
	assert.Equal(t, domain.TipFailed, after[1].Status)
	assert.Equal(t, domain.TipConfirmed, after[2].Status)
	assert.True(t, h.ledger.Reconciling())

	_, err = h.ledger.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, after, h.ledger.Tips())

	// flipping receipts of terminal tips changes nothing
	h.chain.setReceipt(a.TxHash, starknet.StatusRejected)
	h.chain.setReceipt(b.TxHash, starknet.StatusAcceptedOnL2)
	hits := h.chain.receiptHits.Load()
	_, err = h.ledger.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, after, h.ledger.Tips())
	assert.Equal(t, hits+1, h.chain.receiptHits.Load(), "only the pending tip is fetched")
	assert.Equal(t, int64(1), h.tipCount(t))
}

func TestReconcile_ReceiptErrorRetryPolicy(t *testing.T) {
	h := newHarness(t, 100, func(c *Config) { c.RequireAllowance = false })
	ctx := context.Background()

	tip, err := h.ledger.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(1), "")
	require.NoError(t, err)
	h.chain.receiptErr = errors.New("timeout")

	for i := 0; i < 10; i++ {
		res, err := h.ledger.Reconcile(ctx)
		require.ErrorIs(t, err, domain.ErrReconciliation)
		assert.Equal(t, 1, res.Errors)
	}
	assert.Equal(t, domain.TipPending, h.ledger.Tips()[0].Status)
	assert.True(t, h.ledger.Reconciling())

	h.chain.receiptErr = nil
	h.chain.setReceipt(tip.TxHash, starknet.StatusAcceptedOnL2)
	_, err = h.ledger.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TipConfirmed, h.ledger.Tips()[0].Status)
}

func TestReconcile_ReceiptErrorFailAfterPolicy(t *testing.T) {
	h := newHarness(t, 100, func(c *Config) {
		c.RequireAllowance = false
		c.ReceiptErrorPolicy = PolicyFailAfter
		c.MaxReceiptErrors = 3
	})
	ctx := context.Background()

	_, err := h.ledger.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(1), "")
	require.NoError(t, err)

	h.chain.receiptErr = errors.New("timeout")
	_, _ = h.ledger.Reconcile(ctx)
	_, _ = h.ledger.Reconcile(ctx)

	// a successful fetch resets the streak
	h.chain.receiptErr = nil
	_, err = h.ledger.Reconcile(ctx)
	require.NoError(t, err)

	h.chain.receiptErr = errors.New("timeout")
	_, _ = h.ledger.Reconcile(ctx)
	_, _ = h.ledger.Reconcile(ctx)
	assert.Equal(t, domain.TipPending, h.ledger.Tips()[0].Status)

	res, _ := h.ledger.Reconcile(ctx)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, domain.TipFailed, h.ledger.Tips()[0].Status)
	assert.Equal(t, int64(0), h.tipCount(t))
	assert.False(t, h.ledger.Reconciling())
}

func TestReconcile_SentinelHashSkipped(t *testing.T) {
	h := newHarness(t, 100, nil)
	h.ledger.merge([]*domain.Tip{{
		ID:        "sentinel",
		Sender:    senderAddr,
		Recipient: creatorAddr,
		Amount:    decimal.NewFromInt(1),
		TxHash:    domain.PendingTxHash,
		Status:    domain.TipPending,
	}})

	res, err := h.ledger.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Checked)
	assert.Zero(t, h.chain.receiptHits.Load())
	assert.False(t, h.ledger.Reconciling())
}

func TestHydrate_MergesRemote(t *testing.T) {
	h := newHarness(t, 100, func(c *Config) { c.RequireAllowance = false })
	ctx := context.Background()

	local, err := h.ledger.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(1), "")
	require.NoError(t, err)

	require.NoError(t, h.store.UpdateTipStatus(ctx, local.ID, domain.TipConfirmed))
	require.NoError(t, h.store.CreateTip(ctx, &domain.Tip{
		ID: "old", Sender: senderAddr, Recipient: creatorAddr,
		Amount: decimal.NewFromInt(3), Timestamp: 1, TxHash: "0xold", Status: domain.TipPending,
	}))

	require.NoError(t, h.ledger.Hydrate(ctx, senderAddr))

	tips := h.ledger.Tips()
	require.Len(t, tips, 2)
	assert.Equal(t, local.ID, tips[0].ID)
	assert.Equal(t, domain.TipConfirmed, tips[0].Status)
	assert.Equal(t, "old", tips[1].ID)
	assert.True(t, h.ledger.Reconciling())

	// hydrating again does not duplicate
	require.NoError(t, h.ledger.Hydrate(ctx, senderAddr))
	assert.Len(t, h.ledger.Tips(), 2)
}

func TestReconcile_ConcurrentSubmitAndReconcile(t *testing.T) {
	h := newHarness(t, 1000, func(c *Config) { c.RequireAllowance = false })
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tip, err := h.ledger.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(1), fmt.Sprintf("m%d", i))
			if err == nil {
				h.chain.setReceipt(tip.TxHash, starknet.StatusAcceptedOnL2)
			}
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.ledger.Reconcile(ctx)
		}()
	}
	wg.Wait()

	_, err := h.ledger.Reconcile(ctx)
	require.NoError(t, err)

	tips := h.ledger.Tips()
	require.Len(t, tips, 20)
	for _, tip := range tips {
		assert.Equal(t, domain.TipConfirmed, tip.Status)
	}
	assert.Equal(t, int64(20), h.tipCount(t))
}

func TestReconcile_SiblingLedgersCountConfirmationOnce(t *testing.T) {
	h := newHarness(t, 100, func(c *Config) { c.RequireAllowance = false })
	ctx := context.Background()
	other := h.sibling(t)

	tip, err := h.ledger.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(5), "")
	require.NoError(t, err)
	require.NoError(t, other.Hydrate(ctx, senderAddr))
	require.Len(t, other.Tips(), 1)
	assert.True(t, other.Reconciling())

	h.chain.setReceipt(tip.TxHash, starknet.StatusAcceptedOnL2)

	first, err := h.ledger.Reconcile(ctx)
	require.NoError(t, err)
	second, err := other.Reconcile(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Confirmed)
	assert.Equal(t, 1, second.Confirmed)
	assert.Equal(t, domain.TipConfirmed, other.Tips()[0].Status)
	assert.Equal(t, int64(1), h.tipCount(t))
	assert.False(t, other.Reconciling())
}

func TestSubmitTip_DuplicateAcrossSiblingLedgers(t *testing.T) {
	h := newHarness(t, 100, func(c *Config) { c.RequireAllowance = false })
	ctx := context.Background()
	other := h.sibling(t)

	tip, err := h.ledger.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(5), "hi")
	require.NoError(t, err)

	_, err = other.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(5), "hi")
	assert.ErrorIs(t, err, domain.ErrDuplicateSubmission)
	assert.Empty(t, other.Tips())

	h.chain.setReceipt(tip.TxHash, starknet.StatusAcceptedOnL2)
	_, err = h.ledger.Reconcile(ctx)
	require.NoError(t, err)

	// a settled tip no longer blocks the same intent
	_, err = other.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(5), "hi")
	assert.NoError(t, err)
}

func TestReconcile_TaskTracksTipsSubmittedDuringPass(t *testing.T) {
	h := newHarness(t, 1000, func(c *Config) { c.RequireAllowance = false })
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		for _, tip := range h.ledger.Tips() {
			h.chain.setReceipt(tip.TxHash, starknet.StatusAcceptedOnL2)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = h.ledger.Reconcile(ctx)
		}()
		go func(i int) {
			defer wg.Done()
			_, err := h.ledger.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(1), fmt.Sprintf("m%d", i))
			assert.NoError(t, err)
		}(i)
		wg.Wait()

		pending := false
		tips := h.ledger.Tips()
		for j := range tips {
			if tips[j].Reconcilable() {
				pending = true
			}
		}
		require.True(t, pending, "iteration %d", i)
		require.True(t, h.ledger.Reconciling(), "iteration %d: pending tip without reconciliation", i)
	}
}

func TestHydrate_SwitchingSenderDropsPreviousTips(t *testing.T) {
	h := newHarness(t, 100, func(c *Config) { c.RequireAllowance = false })
	ctx := context.Background()
	const otherSender = "0xbbb2"

	mine, err := h.ledger.SubmitTip(ctx, creatorAddr, decimal.NewFromInt(1), "")
	require.NoError(t, err)
	require.NoError(t, h.store.CreateTip(ctx, &domain.Tip{
		ID: "theirs", Sender: otherSender, Recipient: creatorAddr,
		Amount: decimal.NewFromInt(2), Timestamp: 1, TxHash: "0xtheirs", Status: domain.TipPending,
	}))

	require.NoError(t, h.ledger.Hydrate(ctx, otherSender))
	tips := h.ledger.Tips()
	require.Len(t, tips, 1)
	assert.Equal(t, "theirs", tips[0].ID)
	assert.True(t, h.ledger.Reconciling())

	require.NoError(t, h.ledger.Hydrate(ctx, senderAddr))
	tips = h.ledger.Tips()
	require.Len(t, tips, 1)
	assert.Equal(t, mine.ID, tips[0].ID)
}
