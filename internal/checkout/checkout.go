// Package checkout sequences a cart through per-item booking collection and
// payment.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"urbanharvest/internal/cart"
	"urbanharvest/internal/domain"
	"urbanharvest/internal/metrics"
	"urbanharvest/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrAlreadyBooked is returned for a line that is marked booked when the
	// booking behind it cannot be looked up, for example after a restart.
	ErrAlreadyBooked = errors.New("item already booked")
)

type StepKind string

const (
	StepEmpty       StepKind = "empty"
	StepPayment     StepKind = "payment"
	StepBookingForm StepKind = "booking-form"
	StepSelection   StepKind = "selection"
)

// Step is what the shopper has to do next. Item is set for a booking form,
// Items for a selection.
type Step struct {
	Kind  StepKind
	Item  *models.CartLine
	Items []models.CartLine
}

type BookingRequest struct {
	ItemID    string          `json:"itemId"`
	ItemType  models.ItemType `json:"itemType"`
	UserName  string          `json:"userName"`
	UserEmail string          `json:"userEmail"`
	Quantity  int             `json:"quantity"`
}

// Ledger records bookings on the server.
type Ledger interface {
	CreateBooking(ctx context.Context, req BookingRequest) (*models.Booking, error)
}

// BookedView answers whether the signed-in shopper already holds a
// non-cancelled booking for an item.
type BookedView interface {
	HasActiveBooking(ctx context.Context, itemType models.ItemType, itemID string) (bool, error)
}

// BookingFinder is an optional extension of BookedView that returns the
// shopper's active booking for an item, or nil when there is none.
type BookingFinder interface {
	FindActiveBooking(ctx context.Context, itemType models.ItemType, itemID string) (*models.Booking, error)
}

type PaymentReceipt struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId"`
}

type PaymentGateway interface {
	ProcessPayment(ctx context.Context, amount decimal.Decimal) (*PaymentReceipt, error)
}

// DecideNextStep looks only at reservable lines (anything but products) that
// are not booked yet: none means payment, one means its booking form, more
// means the shopper picks which to book first.
func DecideNextStep(lines []models.CartLine, booked func(itemID string) bool) Step {
	if len(lines) == 0 {
		return Step{Kind: StepEmpty}
	}

	var unbooked []models.CartLine
	for _, l := range lines {
		if l.Reservable() && !booked(l.ItemID) {
			unbooked = append(unbooked, l)
		}
	}

	switch len(unbooked) {
	case 0:
		return Step{Kind: StepPayment}
	case 1:
		item := unbooked[0]
		return Step{Kind: StepBookingForm, Item: &item}
	default:
		return Step{Kind: StepSelection, Items: unbooked}
	}
}

type Orchestrator struct {
	cart     *cart.Store
	ledger   Ledger
	payments PaymentGateway
	booked   BookedView
	logger   *zerolog.Logger

	mu       sync.Mutex
	outcomes map[string]*models.Booking
}

// New builds an orchestrator for one cart. booked may be nil for guests.
func New(store *cart.Store, ledger Ledger, payments PaymentGateway, booked BookedView, logger *zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cart:     store,
		ledger:   ledger,
		payments: payments,
		booked:   booked,
		logger:   logger,
		outcomes: make(map[string]*models.Booking),
	}
}

// NextStep evaluates the cart. Ledger hits for items not yet marked locally
// are written back to the cart's booked markers.
func (o *Orchestrator) NextStep(ctx context.Context) (Step, error) {
	lines := o.cart.Lines()
	if o.booked != nil {
		for _, l := range lines {
			if !l.Reservable() || o.cart.IsBooked(l.ItemID) {
				continue
			}
			ok, err := o.booked.HasActiveBooking(ctx, l.ItemType, l.ItemID)
			if err != nil {
				return Step{}, fmt.Errorf("check booking for %s: %w", l.ItemID, err)
			}
			if ok {
				if err := o.cart.MarkBooked(ctx, l.ItemID); err != nil {
					return Step{}, err
				}
			}
		}
	}

	step := DecideNextStep(lines, o.cart.IsBooked)
	metrics.IncCheckoutStep(string(step.Kind))
	return step, nil
}

// SubmitBookingForm books one reservable cart line with the shopper's contact
// details. Submitting again for an already booked line returns the earlier
// booking without creating another one; when this orchestrator did not make
// it, the ledger is asked for it or ErrAlreadyBooked is returned.
func (o *Orchestrator) SubmitBookingForm(ctx context.Context, itemID string, form ContactForm) (*models.Booking, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	line, ok := o.cart.Line(itemID)
	if !ok {
		return nil, fmt.Errorf("cart item %s: %w", itemID, domain.ErrNotFound)
	}
	if !line.Reservable() {
		return nil, domain.NewValidationError("itemId", "products do not need a booking")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cart.IsBooked(itemID) {
		return o.existingBooking(ctx, line)
	}

	booking, err := o.ledger.CreateBooking(ctx, BookingRequest{
		ItemID:    line.ItemID,
		ItemType:  line.ItemType,
		UserName:  form.FullName,
		UserEmail: form.Email,
		Quantity:  line.Quantity,
	})
	if err != nil {
		o.logger.Warn().Err(err).Str("item_id", itemID).Msg("booking failed")
		return nil, err
	}

	if err := o.cart.MarkBooked(ctx, itemID); err != nil {
		return booking, err
	}
	o.outcomes[itemID] = booking

	o.logger.Info().Str("item_id", itemID).Str("booking_id", booking.ID).Msg("cart item booked")
	return booking, nil
}

func (o *Orchestrator) existingBooking(ctx context.Context, line models.CartLine) (*models.Booking, error) {
	if b, ok := o.outcomes[line.ItemID]; ok {
		return b, nil
	}
	if finder, ok := o.booked.(BookingFinder); ok {
		b, err := finder.FindActiveBooking(ctx, line.ItemType, line.ItemID)
		if err != nil {
			return nil, fmt.Errorf("look up booking for %s: %w", line.ItemID, err)
		}
		if b != nil {
			o.outcomes[line.ItemID] = b
			return b, nil
		}
	}
	return nil, fmt.Errorf("cart item %s: %w", line.ItemID, ErrAlreadyBooked)
}

// Pay charges the cart total once every reservable line is booked. Only a
// successful payment clears the cart.
func (o *Orchestrator) Pay(ctx context.Context) (*PaymentReceipt, error) {
	step, err := o.NextStep(ctx)
	if err != nil {
		return nil, err
	}
	switch step.Kind {
	case StepPayment:
	case StepEmpty:
		return nil, domain.NewValidationError("cart", "cart is empty")
	default:
		return nil, domain.NewValidationError("cart", "book all workshops and events before paying")
	}

	total := o.cart.Total()
	receipt, err := o.payments.ProcessPayment(ctx, total)
	if err != nil {
		metrics.IncPayment(false)
		return nil, err
	}
	if receipt == nil || !receipt.Success {
		metrics.IncPayment(false)
		return receipt, ErrPaymentDeclined
	}

	if err := o.cart.Clear(ctx); err != nil {
		return receipt, fmt.Errorf("payment %s succeeded but cart was not cleared: %w", receipt.TransactionID, err)
	}

	o.mu.Lock()
	o.outcomes = make(map[string]*models.Booking)
	o.mu.Unlock()

	metrics.IncPayment(true)
	o.logger.Info().Str("transaction_id", receipt.TransactionID).Str("amount", total.StringFixed(2)).Msg("checkout paid")
	return receipt, nil
}
