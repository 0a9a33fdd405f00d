// Package cart is the per-session shopping cart. Every mutation writes the
// whole document back to its keyed storage before it becomes visible.
package cart

import (
	"context"
	"fmt"
	"sync"

	"urbanharvest/internal/domain"
	"urbanharvest/internal/models"

	"github.com/shopspring/decimal"
)

type Store struct {
	repo domain.CartRepository
	key  string

	mu   sync.Mutex
	cart models.Cart
}

// Load restores the cart saved under key. An unknown key yields an empty cart.
func Load(ctx context.Context, repo domain.CartRepository, key string) (*Store, error) {
	c, err := repo.GetCart(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", key, err)
	}
	s := &Store{repo: repo, key: key}
	if c != nil {
		s.cart = *copyCart(c)
	}
	s.cart = normalize(s.cart)
	return s, nil
}

func (s *Store) Key() string {
	return s.key
}

// Lines returns a snapshot of the current lines.
func (s *Store) Lines() []models.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CartLine, len(s.cart.Lines))
	copy(out, s.cart.Lines)
	return out
}

func (s *Store) Line(itemID string) (models.CartLine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.cart.Lines, itemID)
	if i < 0 {
		return models.CartLine{}, false
	}
	return s.cart.Lines[i], true
}

func (s *Store) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cart.Lines) == 0
}

// Add merges quantity into the line for item.ID, or appends a new line with
// a snapshot of the item. The resulting quantity is clamped to [1, 99].
func (s *Store) Add(ctx context.Context, item models.CatalogItem, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}
	return s.mutate(ctx, func(c *models.Cart) error {
		if i := indexOf(c.Lines, item.ID); i >= 0 {
			c.Lines[i].Quantity = clamp(c.Lines[i].Quantity + quantity)
			return nil
		}
		category := item.Category
		if category == "" {
			category = item.Type.Category()
		}
		c.Lines = append(c.Lines, models.CartLine{
			ItemID:   item.ID,
			ItemType: item.Type,
			Title:    item.Title,
			Price:    item.Price,
			Image:    item.Image,
			Category: category,
			Quantity: clamp(quantity),
		})
		return nil
	})
}

// UpdateQuantity adds delta to the line quantity. It never removes the line.
func (s *Store) UpdateQuantity(ctx context.Context, itemID string, delta int) error {
	return s.mutate(ctx, func(c *models.Cart) error {
		i := indexOf(c.Lines, itemID)
		if i < 0 {
			return fmt.Errorf("cart item %s: %w", itemID, domain.ErrNotFound)
		}
		c.Lines[i].Quantity = clamp(c.Lines[i].Quantity + delta)
		return nil
	})
}

// Remove drops the line and its booked marker. Unknown ids are a no-op.
func (s *Store) Remove(ctx context.Context, itemID string) error {
	return s.mutate(ctx, func(c *models.Cart) error {
		if i := indexOf(c.Lines, itemID); i >= 0 {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
		}
		c.Booked = without(c.Booked, itemID)
		return nil
	})
}

// Clear empties the lines and the booked markers.
func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, func(c *models.Cart) error {
		c.Lines = nil
		c.Booked = nil
		return nil
	})
}

// Total is recomputed from the lines on every call.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, l := range s.cart.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Count is the number of units across all lines.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.cart.Lines {
		n += l.Quantity
	}
	return n
}

func (s *Store) MarkBooked(ctx context.Context, itemIDs ...string) error {
	return s.mutate(ctx, func(c *models.Cart) error {
		for _, id := range itemIDs {
			if !contains(c.Booked, id) {
				c.Booked = append(c.Booked, id)
			}
		}
		return nil
	})
}

func (s *Store) IsBooked(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return contains(s.cart.Booked, itemID)
}

// mutate applies fn to a copy, persists it and only then swaps it in, so a
// storage failure leaves the visible cart unchanged.
func (s *Store) mutate(ctx context.Context, fn func(c *models.Cart) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := copyCart(&s.cart)
	if err := fn(next); err != nil {
		return err
	}
	if len(next.Lines) == 0 && len(next.Booked) == 0 {
		if err := s.repo.DeleteCart(ctx, s.key); err != nil {
			return fmt.Errorf("save cart %s: %w", s.key, err)
		}
	} else if err := s.repo.SaveCart(ctx, s.key, next); err != nil {
		return fmt.Errorf("save cart %s: %w", s.key, err)
	}
	s.cart = *next
	return nil
}

func normalize(c models.Cart) models.Cart {
	for i := range c.Lines {
		c.Lines[i].Quantity = clamp(c.Lines[i].Quantity)
	}
	return c
}

func clamp(q int) int {
	if q < 1 {
		return 1
	}
	if q > models.MaxCartQuantity {
		return models.MaxCartQuantity
	}
	return q
}

func indexOf(lines []models.CartLine, itemID string) int {
	for i, l := range lines {
		if l.ItemID == itemID {
			return i
		}
	}
	return -1
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func copyCart(c *models.Cart) *models.Cart {
	out := &models.Cart{}
	if len(c.Lines) > 0 {
		out.Lines = append([]models.CartLine(nil), c.Lines...)
	}
	if len(c.Booked) > 0 {
		out.Booked = append([]string(nil), c.Booked...)
	}
	return out
}
