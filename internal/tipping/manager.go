// Package tipping owns the per-user sessions that front-ends act on: one
// wallet session and one tip ledger per session key.
package tipping

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/tipstark/internal/directory"
	"github.com/rovshanmuradov/tipstark/internal/domain"
	"github.com/rovshanmuradov/tipstark/internal/ledger"
	"github.com/rovshanmuradov/tipstark/internal/metrics"
	"github.com/rovshanmuradov/tipstark/internal/scheduler"
	"github.com/rovshanmuradov/tipstark/internal/store"
	"github.com/rovshanmuradov/tipstark/internal/wallet"
)

var ErrSessionNotFound = errors.New("session not found")

// Chain is everything sessions read from the chain.
type Chain interface {
	ledger.Chain
	wallet.BalanceReader
}

// Snapshot persists tips per sender.
type Snapshot = ledger.Snapshot

type Session struct {
	Key    string
	Wallet *wallet.Session
	Ledger *ledger.Ledger

	logger *zap.Logger
}

// Connect connects the wallet and hydrates the ledger with the sender's
// stored tips. Reconnecting to another address replaces the ledger's tips
// with those of the new sender. A hydrate failure is logged only.
func (s *Session) Connect(ctx context.Context, connectorID string) error {
	if err := s.Wallet.Connect(ctx, connectorID); err != nil {
		return err
	}
	if err := s.Ledger.Hydrate(ctx, s.Wallet.State().Address); err != nil {
		s.logger.Warn("Failed to hydrate tips", zap.Error(err))
	}
	return nil
}

func (s *Session) close() {
	s.Ledger.Close()
	s.Wallet.Disconnect()
}

type Config struct {
	Wallet wallet.Config
	Ledger ledger.Config
}

type Manager struct {
	cfg       Config
	chain     Chain
	registry  *wallet.Registry
	store     store.RemoteStore
	directory *directory.Directory
	snapshot  Snapshot
	scheduler *scheduler.Scheduler
	hub       *Hub
	reserved  *ledger.Reservations
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Deps are shared by every session. Directory, Snapshot and Metrics may be nil.
type Deps struct {
	Chain     Chain
	Registry  *wallet.Registry
	Store     store.RemoteStore
	Directory *directory.Directory
	Snapshot  Snapshot
	Scheduler *scheduler.Scheduler
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

func NewManager(cfg Config, deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:       cfg,
		chain:     deps.Chain,
		registry:  deps.Registry,
		store:     deps.Store,
		directory: deps.Directory,
		snapshot:  deps.Snapshot,
		scheduler: deps.Scheduler,
		hub:       NewHub(),
		reserved:  ledger.NewReservations(),
		logger:    logger.Named("tipping"),
		metrics:   deps.Metrics,
		sessions:  make(map[string]*Session),
	}
}

func (m *Manager) Hub() *Hub { return m.hub }

// Open returns the session for key, creating it on first use.
func (m *Manager) Open(key string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[key]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s
	}

	logger := m.logger.With(zap.String("session", key))
	w := wallet.NewSession(key, m.cfg.Wallet, m.chain, m.registry, m.scheduler, m.logger, m.metrics)
	deps := ledger.Deps{
		Chain:        m.chain,
		Wallet:       w,
		Store:        m.store,
		Scheduler:    m.scheduler,
		Reservations: m.reserved,
		Logger:       logger,
		Metrics:      m.metrics,
		Snapshot:     m.snapshot,
		Notify:       func(ev domain.TipEvent) { m.hub.Publish(key, ev) },
	}
	if m.directory != nil {
		deps.Creators = m.directory
	}

	s = &Session{Key: key, Wallet: w, Ledger: ledger.New(m.cfg.Ledger, deps), logger: logger}
	m.sessions[key] = s
	m.metrics.SessionOpened()
	m.logger.Debug("Session opened", zap.String("session", key))
	return s
}

func (m *Manager) Get(key string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close stops the session's tasks, disconnects its wallet and drops its
// subscribers. Closing an unknown key is a no-op.
func (m *Manager) Close(key string) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()
	if !ok {
		return
	}
	s.close()
	m.hub.Drop(key)
	m.metrics.SessionClosed()
	m.logger.Debug("Session closed", zap.String("session", key))
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for key, s := range sessions {
		s.close()
		m.hub.Drop(key)
		m.metrics.SessionClosed()
	}
	m.logger.Info("All sessions closed", zap.Int("count", len(sessions)))
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Stats aggregates the directory with the session's tip count.
func (m *Manager) Stats(key string) domain.Stats {
	var count int64
	if s, err := m.Get(key); err == nil {
		count = int64(len(s.Ledger.Tips()))
	}
	if m.directory == nil {
		return domain.Stats{TotalTips: count}
	}
	return m.directory.Stats(count)
}

func (m *Manager) Directory() *directory.Directory { return m.directory }
