// Package cache keeps a local snapshot of tips and creators so a session can
// be pre-populated before the remote store answers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rovshanmuradov/tipstark/internal/domain"
	"github.com/rovshanmuradov/tipstark/pkg/utils"
)

// ErrMiss is returned when no snapshot exists for a key.
var ErrMiss = errors.New("cache miss")

const (
	tipsKeyPrefix = "tipstark:tips:"
	creatorsKey   = "tipstark:creators"

	DefaultTTL = 24 * time.Hour
)

// Backend is a byte-oriented key/value store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Snapshot stores tips per sender and the creator list.
type Snapshot struct {
	backend Backend
	key     string
	ttl     time.Duration
}

type Option func(*Snapshot)

// WithEncryption seals values with AES-GCM under key (at least 32 bytes).
func WithEncryption(key string) Option {
	return func(s *Snapshot) { s.key = key }
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Snapshot) { s.ttl = ttl }
}

func New(backend Backend, opts ...Option) *Snapshot {
	s := &Snapshot{backend: backend, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Snapshot) SaveTips(ctx context.Context, sender string, tips []*domain.Tip) error {
	return s.put(ctx, tipsKeyPrefix+domain.NormalizeAddress(sender), tips)
}

func (s *Snapshot) LoadTips(ctx context.Context, sender string) ([]*domain.Tip, error) {
	var tips []*domain.Tip
	if err := s.get(ctx, tipsKeyPrefix+domain.NormalizeAddress(sender), &tips); err != nil {
		return nil, err
	}
	return tips, nil
}

func (s *Snapshot) SaveCreators(ctx context.Context, creators []*domain.Creator) error {
	return s.put(ctx, creatorsKey, creators)
}

func (s *Snapshot) LoadCreators(ctx context.Context) ([]*domain.Creator, error) {
	var creators []*domain.Creator
	if err := s.get(ctx, creatorsKey, &creators); err != nil {
		return nil, err
	}
	return creators, nil
}

func (s *Snapshot) Close() error {
	return s.backend.Close()
}

func (s *Snapshot) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", key, err)
	}
	if s.key != "" {
		if data, err = utils.EncryptData(data, s.key); err != nil {
			return fmt.Errorf("encrypt snapshot %s: %w", key, err)
		}
	}
	return s.backend.Set(ctx, key, data, s.ttl)
}

func (s *Snapshot) get(ctx context.Context, key string, v any) error {
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		return err
	}
	if s.key != "" {
		if data, err = utils.DecryptData(data, s.key); err != nil {
			return fmt.Errorf("decrypt snapshot %s: %w", key, err)
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal snapshot %s: %w", key, err)
	}
	return nil
}
