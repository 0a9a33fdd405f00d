package service

import (
	"context"
	"time"

	"urbanharvest/internal/domain"
	"urbanharvest/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type PaymentResult struct {
	Success       bool            `json:"success"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
}

// PaymentService simulates a card processor: it waits for the configured
// delay and approves every non-negative amount. A zero total is a cart of
// free items and still gets a transaction id.
type PaymentService struct {
	delay  time.Duration
	logger *zerolog.Logger
}

func NewPaymentService(delay time.Duration, logger *zerolog.Logger) *PaymentService {
	return &PaymentService{delay: delay, logger: logger}
}

func (s *PaymentService) Process(ctx context.Context, amount decimal.Decimal) (*PaymentResult, error) {
	if amount.IsNegative() {
		metrics.IncPayment(false)
		return nil, domain.NewValidationError("amount", "must not be negative")
	}

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			metrics.IncPayment(false)
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	res := &PaymentResult{
		Success:       true,
		TransactionID: "txn_" + uuid.NewString(),
		Amount:        amount,
	}
	metrics.IncPayment(true)
	s.logger.Info().Str("transaction_id", res.TransactionID).Str("amount", amount.StringFixed(2)).Msg("payment processed")
	return res, nil
}
