package bot

import (
	"context"
	"fmt"
	"strings"

	"urbanharvest/internal/cart"
	"urbanharvest/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

// Callback data prefixes.
const (
	cbCategory   = "cat:"
	cbAdd        = "add:"
	cbInc        = "inc:"
	cbDec        = "dec:"
	cbRemove     = "rm:"
	cbBook       = "book:"
	cbCart       = "cart"
	cbCheckout   = "checkout"
	cbPay        = "pay"
	cbClear      = "clear"
	cbAgree      = "agree"
	cbCancel     = "cancel_form"
	cbCategories = "catalog"
)

type paginationParams struct {
	ChatID     int64
	Page       int
	Title      string
	PagePrefix string
}

// renderPaginatedList sends one page; renderer gets the half-open index range.
func (b *Bot) renderPaginatedList(params paginationParams, totalCount int, renderer func(startIdx, endIdx int) (string, [][]tgbotapi.InlineKeyboardButton)) {
	perPage := b.opts.PageSize

	totalPages := (totalCount + perPage - 1) / perPage
	if params.Page >= totalPages && totalPages > 0 {
		params.Page = totalPages - 1
	}
	if params.Page < 0 {
		params.Page = 0
	}
	startIdx := params.Page * perPage
	endIdx := startIdx + perPage
	if endIdx > totalCount {
		endIdx = totalCount
	}

	content, keyboard := renderer(startIdx, endIdx)

	var message strings.Builder
	message.WriteString(params.Title + "\n\n")
	if totalPages > 1 {
		fmt.Fprintf(&message, "Page %d of %d\n\n", params.Page+1, totalPages)
	}
	message.WriteString(content)

	var nav []tgbotapi.InlineKeyboardButton
	if params.Page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", fmt.Sprintf("%s%d", params.PagePrefix, params.Page-1)))
	}
	if endIdx < totalCount {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Next ➡️", fmt.Sprintf("%s%d", params.PagePrefix, params.Page+1)))
	}
	if len(nav) > 0 {
		keyboard = append(keyboard, nav)
	}
	keyboard = append(keyboard, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("🛒 Cart", cbCart),
		tgbotapi.NewInlineKeyboardButtonData("📂 Categories", cbCategories),
	})

	b.sendKeyboard(params.ChatID, message.String(), keyboard)
}

func (b *Bot) sendCategories(chatID int64) {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(models.ItemTypes))
	for _, t := range models.ItemTypes {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(categoryLabel(t), fmt.Sprintf("%s%s:0", cbCategory, t.Category())),
		))
	}
	b.sendKeyboard(chatID, "🌱 *Urban Harvest Hub*\n\nWhat would you like to browse?", rows)
}

func (b *Bot) sendCatalogPage(ctx context.Context, chatID int64, itemType models.ItemType, page int) {
	items, err := b.shop.ListCatalog(ctx, itemType)
	if err != nil {
		b.logger.Error().Err(err).Str("item_type", string(itemType)).Msg("list catalog")
		b.send(chatID, b.getErrorMessage(err))
		return
	}
	if len(items) == 0 {
		b.send(chatID, fmt.Sprintf("There are no %s right now.", itemType.Category()))
		return
	}

	params := paginationParams{
		ChatID:     chatID,
		Page:       page,
		Title:      categoryLabel(itemType),
		PagePrefix: fmt.Sprintf("%s%s:", cbCategory, itemType.Category()),
	}
	b.renderPaginatedList(params, len(items), func(startIdx, endIdx int) (string, [][]tgbotapi.InlineKeyboardButton) {
		var content strings.Builder
		var keyboard [][]tgbotapi.InlineKeyboardButton
		for i, item := range items[startIdx:endIdx] {
			fmt.Fprintf(&content, "%d. *%s* %s\n", startIdx+i+1, escape(item.Title), money(item.Price))
			if item.Date != "" {
				fmt.Fprintf(&content, "   📅 %s\n", escape(item.Date))
			}
			if item.Location != "" {
				fmt.Fprintf(&content, "   📍 %s\n", escape(item.Location))
			}
			if item.Availability != "" {
				fmt.Fprintf(&content, "   📦 %s\n", escape(item.Availability))
			}
			content.WriteString("\n")

			keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(
					fmt.Sprintf("➕ %s", item.Title),
					fmt.Sprintf("%s%s:%s", cbAdd, item.Type, item.ID),
				),
			))
		}
		return content.String(), keyboard
	})
}

func (b *Bot) sendCart(chatID int64, store *cart.Store) {
	lines := store.Lines()
	if len(lines) == 0 {
		b.sendKeyboard(chatID, "🛒 Your cart is empty.", [][]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📂 Browse", cbCategories)),
		})
		return
	}

	var sb strings.Builder
	sb.WriteString("🛒 *Your cart*\n\n")
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(lines)+1)
	for _, l := range lines {
		fmt.Fprintf(&sb, "• %s × %d = %s", escape(l.Title), l.Quantity, money(l.Subtotal()))
		if store.IsBooked(l.ItemID) {
			sb.WriteString(" ✅ booked")
		}
		sb.WriteString("\n")

		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➖ "+shorten(l.Title), cbDec+l.ItemID),
			tgbotapi.NewInlineKeyboardButtonData("➕", cbInc+l.ItemID),
			tgbotapi.NewInlineKeyboardButtonData("🗑", cbRemove+l.ItemID),
		))
	}
	fmt.Fprintf(&sb, "\n*Total: %s* (%d items)", money(store.Total()), store.Count())

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Checkout", cbCheckout),
		tgbotapi.NewInlineKeyboardButtonData("🧹 Clear", cbClear),
	))
	b.sendKeyboard(chatID, sb.String(), rows)
}

func categoryLabel(t models.ItemType) string {
	switch t {
	case models.ItemTypeProduct:
		return "🥬 Products"
	case models.ItemTypeWorkshop:
		return "🧑‍🌾 Workshops"
	case models.ItemTypeEvent:
		return "🎪 Events"
	}
	return string(t)
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// shorten keeps button labels readable on phones.
func shorten(s string) string {
	r := []rune(s)
	if len(r) <= 18 {
		return s
	}
	return string(r[:17]) + "…"
}
