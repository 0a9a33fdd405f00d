package domain

import (
	"context"
	"time"

	"urbanharvest/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type CatalogRepository interface {
	GetCatalogItem(ctx context.Context, itemType models.ItemType, id string) (*models.CatalogItem, error)
	ListCatalogItems(ctx context.Context, itemType models.ItemType) ([]*models.CatalogItem, error)
	CreateCatalogItem(ctx context.Context, item *models.CatalogItem) error
	UpdateCatalogItem(ctx context.Context, item *models.CatalogItem) error
	DeleteCatalogItem(ctx context.Context, itemType models.ItemType, id string) error
}

type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	FindPendingBooking(ctx context.Context, userID int64, itemType models.ItemType, itemID string) (*models.Booking, error)
	ListBookings(ctx context.Context) ([]*models.Booking, error)
	ListBookingsByUser(ctx context.Context, userID int64) ([]*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status string) error
	DeleteBooking(ctx context.Context, id string) error
	CountActiveBookings(ctx context.Context, userID int64) (int, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	ListUsers(ctx context.Context, search string) ([]*models.User, error)
	UpdateUserStatus(ctx context.Context, id int64, status string) error
	UpdateUserRole(ctx context.Context, id int64, role string) error
	DeleteUser(ctx context.Context, id int64) error
}

// CatalogResolver maps a polymorphic (itemType, itemId) reference to its record.
type CatalogResolver interface {
	Resolve(ctx context.Context, itemType models.ItemType, id string) (*models.CatalogItem, error)
}

// CartRepository is the keyed durable storage behind the cart store.
type CartRepository interface {
	GetCart(ctx context.Context, key string) (*models.Cart, error)
	SaveCart(ctx context.Context, key string, cart *models.Cart) error
	DeleteCart(ctx context.Context, key string) error
}

type StateRepository interface {
	GetState(ctx context.Context, chatID int64) (*models.ChatState, error)
	SetState(ctx context.Context, state *models.ChatState) error
	ClearState(ctx context.Context, chatID int64) error
	CheckRateLimit(ctx context.Context, chatID int64, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.BookingView) error
	UpdateBookingStatus(ctx context.Context, bookingID string, status string) error
	DeleteBooking(ctx context.Context, bookingID string) error
	ReplaceBookings(ctx context.Context, bookings []models.BookingView) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID string, booking *models.BookingView, status string) error
}
