// internal/wallet/wallet.go
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tipstark/internal/domain"
	"github.com/rovshanmuradov/tipstark/internal/metrics"
	"github.com/rovshanmuradov/tipstark/internal/scheduler"
	"github.com/rovshanmuradov/tipstark/pkg/utils"
)

const DefaultBalanceInterval = 30 * time.Second

// BalanceReader reads raw token balances from the chain.
type BalanceReader interface {
	BalanceOf(ctx context.Context, token, owner string) (*big.Int, error)
}

type Config struct {
	// ChainID the connected account must be on. Empty accepts any network.
	ChainID         string
	TokenAddress    string
	TokenDecimals   int32
	BalanceInterval time.Duration
	RPCTimeout      time.Duration
}

// Session tracks one user's wallet connection and token balance.
type Session struct {
	subject  string
	cfg      Config
	chain    BalanceReader
	registry *Registry
	logger   *zap.Logger
	metrics  *metrics.Metrics

	// connMu serializes Connect and Disconnect.
	connMu sync.Mutex

	mu      sync.RWMutex
	state   domain.WalletState
	account Account

	balanceTask *scheduler.Task
}

func NewSession(subject string, cfg Config, chain BalanceReader, registry *Registry, sched *scheduler.Scheduler, logger *zap.Logger, m *metrics.Metrics) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BalanceInterval <= 0 {
		cfg.BalanceInterval = DefaultBalanceInterval
	}
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = 30 * time.Second
	}
	s := &Session{
		subject:  subject,
		cfg:      cfg,
		chain:    chain,
		registry: registry,
		logger:   logger.With(zap.String("session", subject)),
		metrics:  m,
		state:    domain.DisconnectedWallet(),
	}
	if sched != nil {
		s.balanceTask = sched.NewTask("balance:"+subject, cfg.BalanceInterval, s.refreshBalanceJob)
	}
	return s
}

// Connect enables an account through the connector with the given id.
// Any failure leaves the session disconnected and wraps domain.ErrConnection.
func (s *Session) Connect(ctx context.Context, connectorID string) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	s.disconnectLocked()
	s.setState(domain.WalletState{Balance: decimal.Zero, Status: domain.StatusConnecting})

	account, err := s.enable(ctx, connectorID)
	if err != nil {
		s.setState(domain.DisconnectedWallet())
		s.logger.Warn("Wallet connection failed", zap.String("connector", connectorID), zap.Error(err))
		return err
	}

	address, _ := domain.ValidateAddress(account.Address())
	s.mu.Lock()
	s.account = account
	s.state = domain.WalletState{
		Connected: true,
		Address:   address,
		Balance:   decimal.Zero,
		Status:    domain.StatusConnected,
	}
	s.mu.Unlock()
	s.metrics.WalletConnected(true)

	s.logger.Info("Wallet connected", zap.String("connector", connectorID), zap.String("address", address))

	if err := s.RefreshBalance(ctx); err != nil {
		s.logger.Warn("Initial balance fetch failed", zap.Error(err))
	}
	if s.balanceTask != nil {
		s.balanceTask.Start()
	}
	return nil
}

func (s *Session) enable(ctx context.Context, connectorID string) (Account, error) {
	connector, ok := s.registry.Get(connectorID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownConnector, connectorID)
	}

	account, err := connector.Enable(ctx, s.subject)
	if err != nil {
		if errors.Is(err, domain.ErrConnection) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrConnection, err)
	}

	if s.cfg.ChainID != "" && !strings.EqualFold(account.ChainID(), s.cfg.ChainID) {
		return nil, fmt.Errorf("%w: got %s, want %s", domain.ErrWrongNetwork, account.ChainID(), s.cfg.ChainID)
	}
	if _, err := domain.ValidateAddress(account.Address()); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnection, err)
	}
	return account, nil
}

// Disconnect resets the session. It is idempotent.
func (s *Session) Disconnect() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.disconnectLocked()
}

func (s *Session) disconnectLocked() {
	if s.balanceTask != nil {
		s.balanceTask.Stop()
	}

	s.mu.Lock()
	wasConnected := s.state.Connected
	s.account = nil
	s.state = domain.DisconnectedWallet()
	s.mu.Unlock()

	if wasConnected {
		s.metrics.WalletConnected(false)
		s.logger.Info("Wallet disconnected")
	}
}

func (s *Session) State() domain.WalletState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Connected() bool {
	return s.State().Connected
}

func (s *Session) Subject() string { return s.subject }

// Account returns the connected account or domain.ErrNotConnected.
func (s *Session) Account() (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.account == nil {
		return nil, domain.ErrNotConnected
	}
	return s.account, nil
}

// RefreshBalance re-reads the token balance of the connected address.
func (s *Session) RefreshBalance(ctx context.Context) error {
	state := s.State()
	if !state.Connected {
		return domain.ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RPCTimeout)
	defer cancel()

	raw, err := s.chain.BalanceOf(ctx, s.cfg.TokenAddress, state.Address)
	if err != nil {
		return fmt.Errorf("balance of %s: %w", state.Address, err)
	}
	balance := utils.FromBaseUnits(raw, s.cfg.TokenDecimals)

	s.mu.Lock()
	// the wallet may have changed while the call was in flight
	if s.state.Connected && s.state.Address == state.Address {
		s.state.Balance = balance
	}
	s.mu.Unlock()

	s.logger.Debug("Balance refreshed", zap.String("balance", balance.String()))
	return nil
}

func (s *Session) refreshBalanceJob(ctx context.Context) {
	if err := s.RefreshBalance(ctx); err != nil {
		s.logger.Warn("Balance refresh failed", zap.Error(err))
	}
}

// Debit lowers the local balance after a submitted tip, ahead of the next
// chain refresh.
func (s *Session) Debit(amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Connected {
		return
	}
	next := s.state.Balance.Sub(amount)
	if next.IsNegative() {
		next = decimal.Zero
	}
	s.state.Balance = next
}

func (s *Session) setState(st domain.WalletState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
