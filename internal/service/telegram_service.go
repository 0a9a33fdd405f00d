package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"urbanharvest/internal/domain"
	"urbanharvest/internal/events"
	"urbanharvest/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramService wraps the bot API for the storefront bot and posts booking
// notifications to the admin chat. A nil sender disables it.
type TelegramService struct {
	bot         domain.TelegramSender
	adminChatID int64
	logger      *zerolog.Logger
}

func NewTelegramService(bot domain.TelegramSender, adminChatID int64, logger *zerolog.Logger) *TelegramService {
	return &TelegramService{
		bot:         bot,
		adminChatID: adminChatID,
		logger:      logger,
	}
}

func (s *TelegramService) Enabled() bool {
	return s.bot != nil
}

func (s *TelegramService) SendMessage(chatID int64, text string) (tgbotapi.Message, error) {
	if s.bot == nil {
		return tgbotapi.Message{}, nil
	}
	return s.bot.Send(tgbotapi.NewMessage(chatID, text))
}

func (s *TelegramService) SendMarkdown(chatID int64, text string) (tgbotapi.Message, error) {
	if s.bot == nil {
		return tgbotapi.Message{}, nil
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = models.ParseModeMarkdown
	return s.bot.Send(msg)
}

func (s *TelegramService) SendWithInlineKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	if s.bot == nil {
		return tgbotapi.Message{}, nil
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = models.ParseModeMarkdown
	msg.ReplyMarkup = keyboard
	return s.bot.Send(msg)
}

func (s *TelegramService) AnswerCallback(callbackID, text string) error {
	if s.bot == nil {
		return nil
	}
	_, err := s.bot.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

func (s *TelegramService) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return s.bot.GetUpdatesChan(config)
}

func (s *TelegramService) StopReceivingUpdates() {
	if s.bot != nil {
		s.bot.StopReceivingUpdates()
	}
}

// HandleEvent is an event bus subscriber that tells the admin chat about
// new bookings and status changes.
func (s *TelegramService) HandleEvent(event *events.Event) error {
	if s.bot == nil || s.adminChatID == 0 {
		return nil
	}

	var p events.BookingEventPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}

	text := FormatBookingNotification(event.Type, p)
	if text == "" {
		return nil
	}
	if _, err := s.SendMarkdown(s.adminChatID, text); err != nil {
		s.logger.Error().Err(err).Str("booking_id", p.BookingID).Msg("admin notification failed")
		return err
	}
	return nil
}

func FormatBookingNotification(eventType string, p events.BookingEventPayload) string {
	var b strings.Builder
	switch eventType {
	case events.EventBookingCreated:
		b.WriteString("*New booking*\n\n")
	case events.EventBookingStatusChanged:
		fmt.Fprintf(&b, "*Booking %s → %s*\n\n", p.PreviousStatus, p.Status)
	case events.EventBookingDeleted:
		b.WriteString("*Booking deleted*\n\n")
	default:
		return ""
	}

	fmt.Fprintf(&b, "Item: %s (%s)\n", p.ItemTitle, p.ItemType)
	fmt.Fprintf(&b, "Quantity: %d\n", p.Quantity)
	fmt.Fprintf(&b, "Total: %s\n", p.TotalPrice)
	fmt.Fprintf(&b, "Customer: %s <%s>\n", p.UserName, p.UserEmail)
	if p.UserID == nil {
		b.WriteString("Guest checkout\n")
	}
	fmt.Fprintf(&b, "ID: `%s`", p.BookingID)
	return b.String()
}
