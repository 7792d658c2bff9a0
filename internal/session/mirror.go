package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yigit/academydesk/internal/pkg/apperrors"
	"github.com/yigit/academydesk/internal/pkg/kvstore"
	"github.com/yigit/academydesk/internal/pkg/logger"
)

const mirrorTimeout = 5 * time.Second

// Mirror copies token changes into durable storage
type Mirror struct {
	kv  kvstore.Store
	key string
	log zerolog.Logger

	mu   sync.Mutex
	last string
}

// NewMirror creates a Mirror; initial is the token storage already holds
func NewMirror(kv kvstore.Store, key, initial string) *Mirror {
	return &Mirror{
		kv:   kv,
		key:  key,
		log:  logger.For("session-mirror"),
		last: initial,
	}
}

// Observe writes s.Token through to storage when it changed
func (m *Mirror) Observe(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Token == m.last {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	var err error
	if s.Token == "" {
		err = m.kv.Remove(ctx, m.key)
	} else {
		err = m.kv.Set(ctx, m.key, s.Token)
	}
	if err != nil {
		m.log.Error().Err(err).Str("key", m.key).Msg("Failed to mirror token")
		return
	}
	m.last = s.Token
}

// Verify checks that storage agrees with s. Disagreement is a logic error
// reported as ErrTokenDivergence.
func (m *Mirror) Verify(ctx context.Context, s State) error {
	stored, err := m.kv.Get(ctx, m.key)
	if errors.Is(err, apperrors.ErrKeyNotFound) {
		stored, err = "", nil
	}
	if err != nil {
		return fmt.Errorf("read durable token: %w", err)
	}
	if stored != s.Token {
		return fmt.Errorf("%w: stored token present=%t, session token present=%t",
			apperrors.ErrTokenDivergence, stored != "", s.Token != "")
	}
	return nil
}
