package bot

import (
	"errors"
	"sort"
	"strings"

	"urbanharvest/internal/checkout"
	"urbanharvest/internal/domain"
)

func (b *Bot) getErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) && !verr.Empty() {
		keys := make([]string, 0, len(verr.Fields))
		for k := range verr.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		sb.WriteString("⚠️ Please check your details:")
		for _, k := range keys {
			sb.WriteString("\n• ")
			sb.WriteString(verr.Fields[k])
		}
		return sb.String()
	}

	switch {
	case errors.Is(err, checkout.ErrPaymentDeclined):
		return "❌ Your payment was declined. Your cart has been kept, please try again."
	case errors.Is(err, domain.ErrNotFound):
		return "⚠️ That item is no longer available."
	case errors.Is(err, domain.ErrAccountSuspended):
		return "⛔ The shop account used by this bot is suspended. Please contact the shop."
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrForbidden):
		return "⛔ The shop refused this request. Please contact the shop."
	case errors.Is(err, domain.ErrValidation):
		return "⚠️ The shop rejected the request. Please check your details."
	}

	return "❌ Something went wrong while processing your request. Please try again later."
}
