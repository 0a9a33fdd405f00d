package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"urbanharvest/internal/checkout"
	"urbanharvest/internal/domain"
	"urbanharvest/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Chat state keys for the booking form.
const (
	keyItemID   = "item_id"
	keyFullName = "full_name"
	keyEmail    = "email"
	keyPhone    = "phone"
)

const helpText = `🌱 Urban Harvest Hub

/catalog - browse products, workshops and events
/cart - show your cart
/add <category> <id> [qty] - add an item by id
/remove <id> - remove an item from the cart
/checkout - book workshops and events, then pay
/pay - pay once everything is booked
/clear - empty the cart
/cancel - stop filling in a booking form`

func (b *Bot) handleMessage(ctx context.Context, chatID int64, msg *tgbotapi.Message) {
	if msg == nil {
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, chatID, msg)
		return
	}

	state, err := b.state.GetChatState(ctx, chatID)
	if err != nil {
		b.send(chatID, b.getErrorMessage(err))
		return
	}
	if state == nil || state.CurrentStep == "" {
		b.send(chatID, helpText)
		return
	}
	b.handleFormInput(ctx, chatID, state, strings.TrimSpace(msg.Text))
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	zerolog.Ctx(ctx).Debug().Int64("chat_id", chatID).Str("command", msg.Command()).Msg("command")

	switch msg.Command() {
	case "start", "help":
		b.send(chatID, helpText)
		b.sendCategories(chatID)
	case "catalog":
		if len(args) == 0 {
			b.sendCategories(chatID)
			return
		}
		itemType, ok := parseCategory(args[0])
		if !ok {
			b.send(chatID, "Unknown category. Use products, workshops or events.")
			return
		}
		b.sendCatalogPage(ctx, chatID, itemType, 0)
	case "cart":
		b.showCart(ctx, chatID)
	case "add":
		b.handleAddCommand(ctx, chatID, args)
	case "remove":
		if len(args) != 1 {
			b.send(chatID, "Usage: /remove <id>")
			return
		}
		b.changeLine(ctx, chatID, cbRemove, args[0])
	case "checkout":
		b.advanceCheckout(ctx, chatID)
	case "pay":
		b.pay(ctx, chatID)
	case "clear":
		b.clearCart(ctx, chatID)
	case "cancel":
		b.cancelForm(ctx, chatID)
	default:
		b.send(chatID, "Unknown command.\n\n"+helpText)
	}
}

func (b *Bot) handleAddCommand(ctx context.Context, chatID int64, args []string) {
	if len(args) < 2 || len(args) > 3 {
		b.send(chatID, "Usage: /add <category> <id> [qty]")
		return
	}
	itemType, ok := parseCategory(args[0])
	if !ok {
		b.send(chatID, "Unknown category. Use products, workshops or events.")
		return
	}
	qty := 1
	if len(args) == 3 {
		n, err := strconv.Atoi(args[2])
		if err != nil {
			b.send(chatID, "Quantity must be a number.")
			return
		}
		qty = n
	}
	b.addToCart(ctx, chatID, itemType, args[1], qty)
}

func (b *Bot) addToCart(ctx context.Context, chatID int64, itemType models.ItemType, itemID string, qty int) {
	s, err := b.session(ctx, chatID)
	if err != nil {
		b.send(chatID, b.getErrorMessage(err))
		return
	}
	item, err := b.shop.GetCatalogItem(ctx, itemType, itemID)
	if err != nil {
		b.send(chatID, b.getErrorMessage(err))
		return
	}
	if err := s.cart.Add(ctx, *item, qty); err != nil {
		b.send(chatID, b.getErrorMessage(err))
		return
	}
	b.metrics.incCartAdd(string(itemType))

	line, _ := s.cart.Line(item.ID)
	text := fmt.Sprintf("Added *%s* (now × %d).\nCart total: %s", escape(item.Title), line.Quantity, money(s.cart.Total()))
	b.sendKeyboard(chatID, text, [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🛒 Cart", cbCart),
			tgbotapi.NewInlineKeyboardButtonData("✅ Checkout", cbCheckout),
		),
	})
}

func (b *Bot) showCart(ctx context.Context, chatID int64) {
	s, err := b.session(ctx, chatID)
	if err != nil {
		b.send(chatID, b.getErrorMessage(err))
		return
	}
	b.sendCart(chatID, s.cart)
}

// changeLine applies an inc, dec or remove action to one line.
func (b *Bot) changeLine(ctx context.Context, chatID int64, action, itemID string) {
	s, err := b.session(ctx, chatID)
	if err != nil {
		b.send(chatID, b.getErrorMessage(err))
		return
	}
	switch action {
	case cbInc:
		err = s.cart.UpdateQuantity(ctx, itemID, 1)
	case cbDec:
		err = s.cart.UpdateQuantity(ctx, itemID, -1)
	case cbRemove:
		err = s.cart.Remove(ctx, itemID)
	}
	if err != nil {
		b.send(chatID, b.getErrorMessage(err))
		return
	}
	b.sendCart(chatID, s.cart)
}

func (b *Bot) clearCart(ctx context.Context, chatID int64) {
	s, err := b.session(ctx, chatID)
	if err != nil {
		b.send(chatID, b.getErrorMessage(err))
		return
	}
	if err := s.cart.Clear(ctx); err != nil {
		b.send(chatID, b.getErrorMessage(err))
		return
	}
	_ = b.state.ClearChatState(ctx, chatID)
	b.send(chatID, "🧹 Your cart is empty now.")
}

// advanceCheckout shows whatever the cart needs next: a booking form, a
// choice between items, or the payment prompt.
func (b *Bot) advanceCheckout(ctx context.Context, chatID int64) {
	s, err := b.session(ctx, chatID)
	if err != nil {
		b.send(chatID, b.getErrorMessage(err))
		return
	}
	step, err := s.flow.NextStep(ctx)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("checkout step")
		b.send(chatID, b.getErrorMessage(err))
		return
	}

	switch step.Kind {
	case checkout.StepEmpty:
		b.send(chatID, "🛒 Your cart is empty. Use /catalog to find something.")
	case checkout.StepPayment:
		_ = b.state.ClearChatState(ctx, chatID)
		text := fmt.Sprintf("💳 Everything is booked.\n\n*Total: %s*", money(s.cart.Total()))
		b.sendKeyboard(chatID, text, [][]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💳 Pay now", cbPay)),
		})
	case checkout.StepBookingForm:
		b.startBookingForm(ctx, chatID, *step.Item)
	case checkout.StepSelection:
		if err := b.state.SetStep(ctx, chatID, models.StateSelectItem, nil); err != nil {
			b.send(chatID, b.getErrorMessage(err))
			return
		}
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(step.Items))
		for _, l := range step.Items {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("📝 "+l.Title, cbBook+l.ItemID),
			))
		}
		b.sendKeyboard(chatID, "Several items need booking details. Which one first?", rows)
	}
}

func (b *Bot) startBookingForm(ctx context.Context, chatID int64, line models.CartLine) {
	if err := b.state.SetStep(ctx, chatID, models.StateEnterName, map[string]interface{}{keyItemID: line.ItemID}); err != nil {
		b.send(chatID, b.getErrorMessage(err))
		return
	}
	b.sendMarkdown(chatID, fmt.Sprintf("📝 Booking *%s* × %d\n\nPlease enter your full name:", escape(line.Title), line.Quantity))
}

func (b *Bot) handleFormInput(ctx context.Context, chatID int64, state *models.ChatState, text string) {
	data := state.TempData
	if data == nil {
		data = map[string]interface{}{}
	}

	var next, prompt string
	switch state.CurrentStep {
	case models.StateEnterName:
		if text == "" {
			b.send(chatID, "Please enter your full name:")
			return
		}
		data[keyFullName] = text
		next, prompt = models.StateEnterEmail, "Your email address:"
	case models.StateEnterEmail:
		data[keyEmail] = text
		next, prompt = models.StateEnterPhone, "Your phone number:"
	case models.StateEnterPhone:
		data[keyPhone] = text
		next = models.StateConfirmTerms
	case models.StateConfirmTerms:
		b.askTerms(chatID)
		return
	case models.StateSelectItem:
		b.send(chatID, "Please pick an item above, or /cancel.")
		return
	default:
		_ = b.state.ClearChatState(ctx, chatID)
		b.send(chatID, helpText)
		return
	}

	if err := b.state.SetStep(ctx, chatID, next, data); err != nil {
		b.send(chatID, b.getErrorMessage(err))
		return
	}
	if next == models.StateConfirmTerms {
		b.askTerms(chatID)
		return
	}
	b.send(chatID, prompt)
}

func (b *Bot) askTerms(chatID int64) {
	b.sendKeyboard(chatID, "Do you agree to the terms and conditions?", [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ I agree", cbAgree),
			tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", cbCancel),
		),
	})
}

// submitForm books the item once the shopper agreed to the terms.
func (b *Bot) submitForm(ctx context.Context, chatID int64) {
	state, err := b.state.GetChatState(ctx, chatID)
	if err != nil {
		b.send(chatID, b.getErrorMessage(err))
		return
	}
	if state == nil || state.CurrentStep != models.StateConfirmTerms {
		b.send(chatID, "There is no booking form in progress. Use /checkout.")
		return
	}
	s, err := b.session(ctx, chatID)
	if err != nil {
		b.send(chatID, b.getErrorMessage(err))
		return
	}

	itemID := state.GetString(keyItemID)
	form := checkout.ContactForm{
		FullName: state.GetString(keyFullName),
		Email:    state.GetString(keyEmail),
		Phone:    state.GetString(keyPhone),
		Agreed:   true,
	}
	booking, err := s.flow.SubmitBookingForm(ctx, itemID, form)
	if errors.Is(err, checkout.ErrAlreadyBooked) {
		_ = b.state.ClearChatState(ctx, chatID)
		b.send(chatID, "ℹ️ This item is already booked for you.")
		b.advanceCheckout(ctx, chatID)
		return
	}
	if err != nil {
		b.send(chatID, b.getErrorMessage(err))
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			b.reaskField(ctx, chatID, state, verr)
			return
		}
		_ = b.state.ClearChatState(ctx, chatID)
		return
	}

	_ = b.state.ClearChatState(ctx, chatID)
	if booking != nil {
		b.sendMarkdown(chatID, fmt.Sprintf("✅ Booked! Reference: `%s`", booking.ID))
	}
	b.advanceCheckout(ctx, chatID)
}

// reaskField moves the dialog back to the first invalid field.
func (b *Bot) reaskField(ctx context.Context, chatID int64, state *models.ChatState, verr *domain.ValidationError) {
	steps := []struct {
		field, step, prompt string
	}{
		{"fullName", models.StateEnterName, "Please enter your full name:"},
		{"email", models.StateEnterEmail, "Your email address:"},
		{"phone", models.StateEnterPhone, "Your phone number:"},
	}
	for _, s := range steps {
		if _, bad := verr.Fields[s.field]; bad {
			if err := b.state.SetStep(ctx, chatID, s.step, state.TempData); err != nil {
				b.send(chatID, b.getErrorMessage(err))
				return
			}
			b.send(chatID, s.prompt)
			return
		}
	}
	_ = b.state.ClearChatState(ctx, chatID)
}

func (b *Bot) cancelForm(ctx context.Context, chatID int64) {
	_ = b.state.ClearChatState(ctx, chatID)
	b.send(chatID, "Booking form cancelled. Your cart is unchanged.")
}

func (b *Bot) pay(ctx context.Context, chatID int64) {
	s, err := b.session(ctx, chatID)
	if err != nil {
		b.send(chatID, b.getErrorMessage(err))
		return
	}
	total := s.cart.Total()
	receipt, err := s.flow.Pay(ctx)
	if err != nil {
		b.send(chatID, b.getErrorMessage(err))
		return
	}
	_ = b.state.ClearChatState(ctx, chatID)
	b.sendMarkdown(chatID, fmt.Sprintf("🎉 Payment of %s successful.\nTransaction: `%s`\n\nThank you for supporting urban farming!", money(total), receipt.TransactionID))
}

// parseCategory accepts a category tag ("workshops") or an item type ("workshop").
func parseCategory(s string) (models.ItemType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if t, ok := models.ItemTypeFromCategory(s); ok {
		return t, true
	}
	t := models.ItemType(s)
	return t, t.Valid()
}
