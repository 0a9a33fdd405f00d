package repository

import (
	"context"
	"sync/atomic"
	"time"

	"urbanharvest/internal/domain"
	"urbanharvest/internal/models"

	"github.com/rs/zerolog"
)

// Store is what the failover wrapper switches between.
type Store interface {
	domain.CartRepository
	domain.StateRepository
}

const recoveryInterval = time.Minute

// FailoverRepository serves from primary until a call fails, then from
// fallback; primary is retried at most once per recoveryInterval.
type FailoverRepository struct {
	primary   Store
	fallback  Store
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverRepository(primary, fallback Store, logger *zerolog.Logger) *FailoverRepository {
	return &FailoverRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverRepository) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary session store failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverRepository) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary session store recovered")
	}
}

func (r *FailoverRepository) GetCart(ctx context.Context, key string) (*models.Cart, error) {
	if r.usePrimary() {
		cart, err := r.primary.GetCart(ctx, key)
		if err == nil {
			r.recovered()
			return cart, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetCart(ctx, key)
}

func (r *FailoverRepository) SaveCart(ctx context.Context, key string, cart *models.Cart) error {
	if r.usePrimary() {
		err := r.primary.SaveCart(ctx, key, cart)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SaveCart(ctx, key, cart)
}

func (r *FailoverRepository) DeleteCart(ctx context.Context, key string) error {
	// clear both so a stale fallback copy cannot resurface after recovery
	_ = r.fallback.DeleteCart(ctx, key)
	if r.usePrimary() {
		err := r.primary.DeleteCart(ctx, key)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return nil
}

func (r *FailoverRepository) GetState(ctx context.Context, chatID int64) (*models.ChatState, error) {
	if r.usePrimary() {
		state, err := r.primary.GetState(ctx, chatID)
		if err == nil {
			r.recovered()
			return state, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetState(ctx, chatID)
}

func (r *FailoverRepository) SetState(ctx context.Context, state *models.ChatState) error {
	if r.usePrimary() {
		err := r.primary.SetState(ctx, state)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetState(ctx, state)
}

func (r *FailoverRepository) ClearState(ctx context.Context, chatID int64) error {
	_ = r.fallback.ClearState(ctx, chatID)
	if r.usePrimary() {
		err := r.primary.ClearState(ctx, chatID)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return nil
}

func (r *FailoverRepository) CheckRateLimit(ctx context.Context, chatID int64, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, chatID, limit, window)
		if err == nil {
			r.recovered()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, chatID, limit, window)
}
