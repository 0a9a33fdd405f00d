package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"urbanharvest/internal/domain"
	"urbanharvest/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultCatalogCacheTTL bounds how long Resolve trusts its copy of a record
// that was changed outside this process, for example by a migration script.
const DefaultCatalogCacheTTL = 30 * time.Second

type catalogKey struct {
	itemType models.ItemType
	id       string
}

type cachedItem struct {
	item     models.CatalogItem
	loadedAt time.Time
}

// CatalogService resolves polymorphic item references and serves the admin
// catalog CRUD. Resolve reads through a per-record cache: entries expire
// after the TTL, writes through the service evict theirs, and a record the
// repository no longer has is dropped on the next miss.
type CatalogService struct {
	repo   domain.CatalogRepository
	logger *zerolog.Logger
	ttl    time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	items map[catalogKey]cachedItem
}

func NewCatalogService(repo domain.CatalogRepository, logger *zerolog.Logger) *CatalogService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &CatalogService{
		repo:   repo,
		logger: logger,
		ttl:    DefaultCatalogCacheTTL,
		now:    time.Now,
		items:  make(map[catalogKey]cachedItem),
	}
}

// SetCacheTTL changes how long records are served from memory. Zero or less
// sends every Resolve to the repository.
func (s *CatalogService) SetCacheTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttl = ttl
}

// Resolve returns the current record for (itemType, id).
func (s *CatalogService) Resolve(ctx context.Context, itemType models.ItemType, id string) (*models.CatalogItem, error) {
	if !itemType.Valid() {
		return nil, domain.NewValidationError("itemType", fmt.Sprintf("unknown item type %q", itemType))
	}
	key := catalogKey{itemType, id}

	s.mu.RLock()
	c, ok := s.items[key]
	fresh := ok && s.now().Sub(c.loadedAt) < s.ttl
	s.mu.RUnlock()
	if fresh {
		item := c.item
		return &item, nil
	}

	item, err := s.repo.GetCatalogItem(ctx, itemType, id)
	if errors.Is(err, domain.ErrNotFound) {
		s.forget(key)
	}
	if err != nil {
		return nil, err
	}
	s.remember(*item)
	return item, nil
}

func (s *CatalogService) remember(item models.CatalogItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ttl <= 0 {
		return
	}
	s.items[catalogKey{item.Type, item.ID}] = cachedItem{item: item, loadedAt: s.now()}
}

func (s *CatalogService) forget(key catalogKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

func (s *CatalogService) List(ctx context.Context, itemType models.ItemType) ([]*models.CatalogItem, error) {
	if !itemType.Valid() {
		return nil, domain.NewValidationError("itemType", fmt.Sprintf("unknown item type %q", itemType))
	}
	return s.repo.ListCatalogItems(ctx, itemType)
}

func (s *CatalogService) Create(ctx context.Context, caller *domain.Caller, item *models.CatalogItem) error {
	if err := domain.RequireAdmin(caller); err != nil {
		return err
	}
	if item.ID == "" {
		item.ID = item.Type.IDPrefix() + uuid.NewString()[:8]
	}
	if item.Category == "" {
		item.Category = item.Type.Category()
	}
	if err := validateCatalogItem(item); err != nil {
		return err
	}

	if err := s.repo.CreateCatalogItem(ctx, item); err != nil {
		return err
	}
	s.forget(catalogKey{item.Type, item.ID})
	return nil
}

func (s *CatalogService) Update(ctx context.Context, caller *domain.Caller, item *models.CatalogItem) error {
	if err := domain.RequireAdmin(caller); err != nil {
		return err
	}
	if item.Category == "" {
		item.Category = item.Type.Category()
	}
	if err := validateCatalogItem(item); err != nil {
		return err
	}

	err := s.repo.UpdateCatalogItem(ctx, item)
	// evict on failure too: the repository may have rejected a record it no
	// longer has
	s.forget(catalogKey{item.Type, item.ID})
	return err
}

// Delete removes the record. Bookings pointing at it stay and render as
// dangling references.
func (s *CatalogService) Delete(ctx context.Context, caller *domain.Caller, itemType models.ItemType, id string) error {
	if err := domain.RequireAdmin(caller); err != nil {
		return err
	}
	if !itemType.Valid() {
		return domain.NewValidationError("itemType", fmt.Sprintf("unknown item type %q", itemType))
	}

	err := s.repo.DeleteCatalogItem(ctx, itemType, id)
	s.forget(catalogKey{itemType, id})
	return err
}

// Seed inserts the given records, skipping ids that already exist.
func (s *CatalogService) Seed(ctx context.Context, items []models.CatalogItem) (int, error) {
	created := 0
	for i := range items {
		item := items[i]
		if item.Category == "" {
			item.Category = item.Type.Category()
		}
		if err := validateCatalogItem(&item); err != nil {
			return created, fmt.Errorf("seed %s: %w", item.ID, err)
		}
		err := s.repo.CreateCatalogItem(ctx, &item)
		s.forget(catalogKey{item.Type, item.ID})
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", item.ID, err)
		}
		created++
	}
	return created, nil
}

// Refresh warms the cache with every record. On error the cache is emptied
// rather than left half old.
func (s *CatalogService) Refresh(ctx context.Context) error {
	items := make(map[catalogKey]cachedItem)
	now := s.now()
	for _, t := range models.ItemTypes {
		list, err := s.repo.ListCatalogItems(ctx, t)
		if err != nil {
			s.mu.Lock()
			s.items = make(map[catalogKey]cachedItem)
			s.mu.Unlock()
			return err
		}
		for _, item := range list {
			items[catalogKey{t, item.ID}] = cachedItem{item: *item, loadedAt: now}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ttl > 0 {
		s.items = items
	}
	s.logger.Debug().Int("items", len(items)).Msg("catalog cache warmed")
	return nil
}

func validateCatalogItem(item *models.CatalogItem) error {
	verr := &domain.ValidationError{}
	if !item.Type.Valid() {
		verr.Add("itemType", "must be one of product, workshop, event")
	}
	if strings.TrimSpace(item.ID) == "" {
		verr.Add("id", "required")
	}
	if strings.TrimSpace(item.Title) == "" {
		verr.Add("title", "required")
	}
	if item.Price.IsNegative() {
		verr.Add("price", "must not be negative")
	}
	if item.Type.Valid() && item.Category != item.Type.Category() {
		verr.Add("category", "must be "+item.Type.Category())
	}
	if verr.Empty() {
		return nil
	}
	return verr
}
