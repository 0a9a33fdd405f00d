// Package bot is the Telegram storefront: browse the catalog, keep a cart per
// chat, collect booking details for workshops and events, then pay.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"urbanharvest/internal/cart"
	"urbanharvest/internal/checkout"
	"urbanharvest/internal/domain"
	"urbanharvest/internal/models"
	"urbanharvest/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Messenger is the Telegram surface the bot talks through.
type Messenger interface {
	SendMessage(chatID int64, text string) (tgbotapi.Message, error)
	SendMarkdown(chatID int64, text string) (tgbotapi.Message, error)
	SendWithInlineKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	AnswerCallback(callbackID, text string) error
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Storefront is the booking API as the bot sees it.
type Storefront interface {
	checkout.Ledger
	checkout.PaymentGateway
	ListCatalog(ctx context.Context, itemType models.ItemType) ([]models.CatalogItem, error)
	GetCatalogItem(ctx context.Context, itemType models.ItemType, id string) (*models.CatalogItem, error)
}

type Options struct {
	// PageSize is the number of catalog items per page.
	PageSize int
	// RateLimitPerMinute caps updates per chat; zero disables the check.
	RateLimitPerMinute int
	// Booked answers "already booked" lookups for an authenticated API
	// client. Nil for guest checkouts.
	Booked checkout.BookedView
}

const defaultPageSize = 5

type session struct {
	cart *cart.Store
	flow *checkout.Orchestrator
}

type Bot struct {
	tg       Messenger
	shop     Storefront
	carts    domain.CartRepository
	state    *service.StateService
	booked   checkout.BookedView
	opts     Options
	metrics  *Metrics
	logger   *zerolog.Logger
	mu       sync.Mutex
	sessions map[int64]*session
}

func NewBot(tg Messenger, shop Storefront, carts domain.CartRepository, state *service.StateService, opts Options, metrics *Metrics, logger *zerolog.Logger) *Bot {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Bot{
		tg:       tg,
		shop:     shop,
		carts:    carts,
		state:    state,
		booked:   opts.Booked,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
		sessions: make(map[int64]*session),
	}
}

// Start consumes updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Msg("storefront bot started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			b.tg.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	kind := "other"
	defer func() {
		b.metrics.observe(kind, time.Since(start))
	}()

	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.NewString()).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		var chatID int64
		switch {
		case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
			kind = "callback"
			chatID = update.CallbackQuery.Message.Chat.ID
		case update.Message != nil && update.Message.Chat != nil:
			kind = "message"
			chatID = update.Message.Chat.ID
		}
		if chatID == 0 {
			return
		}

		if !b.allow(updateCtx, chatID) {
			l.Warn().Int64("chat_id", chatID).Msg("Rate limit exceeded")
			if update.Message != nil {
				b.send(chatID, "⚠️ You are sending messages too quickly. Please wait a moment.")
			}
			return
		}

		if update.CallbackQuery != nil {
			b.handleCallbackQuery(updateCtx, chatID, update.CallbackQuery)
			return
		}
		b.handleMessage(updateCtx, chatID, update.Message)
	})
}

// session returns the chat's cart and checkout flow, loading the cart from
// storage on first use.
func (b *Bot) session(ctx context.Context, chatID int64) (*session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.sessions[chatID]; ok {
		return s, nil
	}
	store, err := cart.Load(ctx, b.carts, cartKey(chatID))
	if err != nil {
		return nil, err
	}
	s := &session{
		cart: store,
		flow: checkout.New(store, b.shop, b.shop, b.booked, b.logger),
	}
	b.sessions[chatID] = s
	return s, nil
}

func cartKey(chatID int64) string {
	return fmt.Sprintf("chat:%d", chatID)
}

func (b *Bot) send(chatID int64, text string) {
	if _, err := b.tg.SendMessage(chatID, text); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send message")
	}
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	if _, err := b.tg.SendMarkdown(chatID, text); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send message")
	}
}

func (b *Bot) sendKeyboard(chatID int64, text string, rows [][]tgbotapi.InlineKeyboardButton) {
	if len(rows) == 0 {
		b.sendMarkdown(chatID, text)
		return
	}
	if _, err := b.tg.SendWithInlineKeyboard(chatID, text, tgbotapi.NewInlineKeyboardMarkup(rows...)); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send keyboard")
	}
}
