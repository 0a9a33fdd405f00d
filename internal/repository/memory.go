package repository

import (
	"context"
	"sync"
	"time"

	"urbanharvest/internal/models"
)

// MemoryRepository is the in-process fallback for RedisRepository. Entries do
// not expire; rate limit windows do.
type MemoryRepository struct {
	carts      sync.Map
	states     sync.Map
	rateLimits sync.Map
	mu         sync.Mutex
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func copyCart(c *models.Cart) *models.Cart {
	out := &models.Cart{
		Lines:  append([]models.CartLine(nil), c.Lines...),
		Booked: append([]string(nil), c.Booked...),
	}
	return out
}

func (r *MemoryRepository) GetCart(_ context.Context, key string) (*models.Cart, error) {
	val, ok := r.carts.Load(key)
	if !ok {
		return &models.Cart{}, nil
	}
	return copyCart(val.(*models.Cart)), nil
}

func (r *MemoryRepository) SaveCart(_ context.Context, key string, cart *models.Cart) error {
	r.carts.Store(key, copyCart(cart))
	return nil
}

func (r *MemoryRepository) DeleteCart(_ context.Context, key string) error {
	r.carts.Delete(key)
	return nil
}

func (r *MemoryRepository) GetState(_ context.Context, chatID int64) (*models.ChatState, error) {
	val, ok := r.states.Load(chatID)
	if !ok {
		return nil, nil
	}
	return val.(*models.ChatState), nil
}

func (r *MemoryRepository) SetState(_ context.Context, state *models.ChatState) error {
	r.states.Store(state.ChatID, state)
	return nil
}

func (r *MemoryRepository) ClearState(_ context.Context, chatID int64) error {
	r.states.Delete(chatID)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryRepository) CheckRateLimit(_ context.Context, chatID int64, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	val, ok := r.rateLimits.Load(chatID)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{count: 1, expiresAt: now.Add(window)}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(chatID, entry)
	return entry.count <= limit, nil
}
