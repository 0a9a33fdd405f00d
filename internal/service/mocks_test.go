package service

import (
	"context"
	"sort"
	"sync"

	"urbanharvest/internal/domain"
	"urbanharvest/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockBookingRepo struct {
	mock.Mock
}

func (m *mockBookingRepo) CreateBooking(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockBookingRepo) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookingRepo) FindPendingBooking(ctx context.Context, userID int64, t models.ItemType, itemID string) (*models.Booking, error) {
	args := m.Called(ctx, userID, t, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookingRepo) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *mockBookingRepo) ListBookingsByUser(ctx context.Context, userID int64) ([]*models.Booking, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *mockBookingRepo) UpdateBookingStatus(ctx context.Context, id, status string) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *mockBookingRepo) DeleteBooking(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockBookingRepo) CountActiveBookings(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) CreateUser(ctx context.Context, u *models.User) error {
	return m.Called(ctx, u).Error(0)
}

func (m *mockUserRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserRepo) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	args := m.Called(ctx, login)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserRepo) ListUsers(ctx context.Context, search string) ([]*models.User, error) {
	args := m.Called(ctx, search)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

func (m *mockUserRepo) UpdateUserStatus(ctx context.Context, id int64, status string) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *mockUserRepo) UpdateUserRole(ctx context.Context, id int64, role string) error {
	return m.Called(ctx, id, role).Error(0)
}

func (m *mockUserRepo) DeleteUser(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

type mockSyncWorker struct {
	mock.Mock
}

func (m *mockSyncWorker) EnqueueTask(ctx context.Context, taskType, bookingID string, b *models.BookingView, status string) error {
	return m.Called(ctx, taskType, bookingID, b, status).Error(0)
}

// fakeCatalog is an in-memory CatalogRepository.
type fakeCatalog struct {
	mu      sync.Mutex
	items   map[models.ItemType]map[string]models.CatalogItem
	listErr error
	gets    int
}

func newFakeCatalog(items ...models.CatalogItem) *fakeCatalog {
	f := &fakeCatalog{items: make(map[models.ItemType]map[string]models.CatalogItem)}
	for _, it := range items {
		f.put(it)
	}
	return f
}

func (f *fakeCatalog) put(it models.CatalogItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.items[it.Type] == nil {
		f.items[it.Type] = make(map[string]models.CatalogItem)
	}
	f.items[it.Type][it.ID] = it
}

func (f *fakeCatalog) GetCatalogItem(_ context.Context, t models.ItemType, id string) (*models.CatalogItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	it, ok := f.items[t][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &it, nil
}

func (f *fakeCatalog) ListCatalogItems(_ context.Context, t models.ItemType) ([]*models.CatalogItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*models.CatalogItem, 0, len(f.items[t]))
	for _, it := range f.items[t] {
		it := it
		out = append(out, &it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeCatalog) CreateCatalogItem(_ context.Context, it *models.CatalogItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[it.Type][it.ID]; ok {
		return domain.ErrConflict
	}
	if f.items[it.Type] == nil {
		f.items[it.Type] = make(map[string]models.CatalogItem)
	}
	f.items[it.Type][it.ID] = *it
	return nil
}

func (f *fakeCatalog) UpdateCatalogItem(_ context.Context, it *models.CatalogItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[it.Type][it.ID]; !ok {
		return domain.ErrNotFound
	}
	f.items[it.Type][it.ID] = *it
	return nil
}

func (f *fakeCatalog) DeleteCatalogItem(_ context.Context, t models.ItemType, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[t][id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.items[t], id)
	return nil
}

func (f *fakeCatalog) remove(t models.ItemType, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items[t], id)
}

func (f *fakeCatalog) getCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}
