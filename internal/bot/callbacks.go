package bot

import (
	"context"
	"strconv"
	"strings"

	"urbanharvest/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, chatID int64, callback *tgbotapi.CallbackQuery) {
	data := callback.Data

	// answer right away so the client stops showing the spinner
	if err := b.tg.AnswerCallback(callback.ID, ""); err != nil {
		b.logger.Warn().Err(err).Msg("answer callback")
	}

	switch {
	case data == cbCategories:
		b.sendCategories(chatID)
	case data == cbCart:
		b.showCart(ctx, chatID)
	case data == cbCheckout:
		b.advanceCheckout(ctx, chatID)
	case data == cbPay:
		b.pay(ctx, chatID)
	case data == cbClear:
		b.clearCart(ctx, chatID)
	case data == cbAgree:
		b.submitForm(ctx, chatID)
	case data == cbCancel:
		b.cancelForm(ctx, chatID)

	case strings.HasPrefix(data, cbCategory):
		// cat:<category>:<page>
		parts := strings.SplitN(strings.TrimPrefix(data, cbCategory), ":", 2)
		itemType, ok := models.ItemTypeFromCategory(parts[0])
		if !ok {
			return
		}
		page := 0
		if len(parts) == 2 {
			page, _ = strconv.Atoi(parts[1])
		}
		b.sendCatalogPage(ctx, chatID, itemType, page)

	case strings.HasPrefix(data, cbAdd):
		// add:<itemType>:<id>
		parts := strings.SplitN(strings.TrimPrefix(data, cbAdd), ":", 2)
		if len(parts) != 2 {
			return
		}
		itemType, err := models.ParseItemType(parts[0])
		if err != nil {
			return
		}
		b.addToCart(ctx, chatID, itemType, parts[1], 1)

	case strings.HasPrefix(data, cbInc):
		b.changeLine(ctx, chatID, cbInc, strings.TrimPrefix(data, cbInc))
	case strings.HasPrefix(data, cbDec):
		b.changeLine(ctx, chatID, cbDec, strings.TrimPrefix(data, cbDec))
	case strings.HasPrefix(data, cbRemove):
		b.changeLine(ctx, chatID, cbRemove, strings.TrimPrefix(data, cbRemove))

	case strings.HasPrefix(data, cbBook):
		b.pickItemToBook(ctx, chatID, strings.TrimPrefix(data, cbBook))
	}
}

func (b *Bot) pickItemToBook(ctx context.Context, chatID int64, itemID string) {
	s, err := b.session(ctx, chatID)
	if err != nil {
		b.send(chatID, b.getErrorMessage(err))
		return
	}
	line, ok := s.cart.Line(itemID)
	if !ok || !line.Reservable() {
		b.send(chatID, "That item is not in your cart anymore.")
		return
	}
	if s.cart.IsBooked(itemID) {
		b.send(chatID, "That item is already booked.")
		b.advanceCheckout(ctx, chatID)
		return
	}
	b.startBookingForm(ctx, chatID, line)
}
