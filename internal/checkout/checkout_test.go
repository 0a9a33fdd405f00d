package checkout

import (
	"context"
	"errors"
	"testing"

	"urbanharvest/internal/cart"
	"urbanharvest/internal/database"
	"urbanharvest/internal/domain"
	"urbanharvest/internal/models"
	"urbanharvest/internal/repository"
	"urbanharvest/internal/service"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func line(id string, t models.ItemType, price int64) models.CartLine {
	return models.CartLine{ItemID: id, ItemType: t, Title: id, Price: decimal.NewFromInt(price), Category: t.Category(), Quantity: 1}
}

func TestDecideNextStep(t *testing.T) {
	none := func(string) bool { return false }
	product := line("P1", models.ItemTypeProduct, 4)
	w1 := line("W1", models.ItemTypeWorkshop, 50)
	e1 := line("E1", models.ItemTypeEvent, 30)

	tests := []struct {
		name   string
		lines  []models.CartLine
		booked func(string) bool
		want   StepKind
		item   string
		count  int
	}{
		{name: "empty cart", lines: nil, booked: none, want: StepEmpty},
		{name: "products only", lines: []models.CartLine{product}, booked: none, want: StepPayment},
		{name: "one reservable", lines: []models.CartLine{product, w1}, booked: none, want: StepBookingForm, item: "W1"},
		{name: "two reservable", lines: []models.CartLine{w1, e1}, booked: none, want: StepSelection, count: 2},
		{
			name: "one of two booked", lines: []models.CartLine{w1, e1},
			booked: func(id string) bool { return id == "W1" }, want: StepBookingForm, item: "E1",
		},
		{
			name: "all booked", lines: []models.CartLine{product, w1, e1},
			booked: func(string) bool { return true }, want: StepPayment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := DecideNextStep(tt.lines, tt.booked)
			assert.Equal(t, tt.want, step.Kind)
			if tt.item != "" {
				require.NotNil(t, step.Item)
				assert.Equal(t, tt.item, step.Item.ItemID)
			}
			assert.Len(t, step.Items, tt.count)
		})
	}
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) CreateBooking(ctx context.Context, req BookingRequest) (*models.Booking, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) ProcessPayment(ctx context.Context, amount decimal.Decimal) (*PaymentReceipt, error) {
	args := m.Called(ctx, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PaymentReceipt), args.Error(1)
}

type stubBookedView map[string]bool

func (s stubBookedView) HasActiveBooking(_ context.Context, _ models.ItemType, itemID string) (bool, error) {
	return s[itemID], nil
}

var validForm = ContactForm{FullName: "Ada Lovelace", Email: "ada@example.com", Phone: "+44 20 7946 0000", Agreed: true}

func newCart(t *testing.T, items ...models.CatalogItem) *cart.Store {
	t.Helper()
	ctx := context.Background()
	store, err := cart.Load(ctx, repository.NewMemoryRepository(), "session")
	require.NoError(t, err)
	for _, it := range items {
		require.NoError(t, store.Add(ctx, it, 1))
	}
	return store
}

var (
	w1 = models.CatalogItem{ID: "W1", Type: models.ItemTypeWorkshop, Title: "Pruning", Price: decimal.NewFromInt(50), Category: models.CategoryWorkshops}
	e1 = models.CatalogItem{ID: "E1", Type: models.ItemTypeEvent, Title: "Harvest Fair", Price: decimal.NewFromInt(30), Category: models.CategoryEvents}
	p1 = models.CatalogItem{ID: "P1", Type: models.ItemTypeProduct, Title: "Kale", Price: decimal.NewFromInt(4), Category: models.CategoryProducts}
)

func TestSubmitBookingForm_Validation(t *testing.T) {
	logger := zerolog.Nop()
	ledger := new(mockLedger)
	o := New(newCart(t, w1), ledger, nil, nil, &logger)

	_, err := o.SubmitBookingForm(context.Background(), "W1", ContactForm{Email: "not-an-email"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 4)
	assert.Contains(t, verr.Fields, "fullName")
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "phone")
	assert.Contains(t, verr.Fields, "agreed")

	ledger.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
}

func TestSubmitBookingForm_Idempotent(t *testing.T) {
	logger := zerolog.Nop()
	ctx := context.Background()
	ledger := new(mockLedger)
	store := newCart(t, w1)
	o := New(store, ledger, nil, nil, &logger)

	booking := &models.Booking{ID: "b-1", ItemID: "W1", Status: models.StatusPending}
	ledger.On("CreateBooking", ctx, mock.MatchedBy(func(r BookingRequest) bool {
		return r.ItemID == "W1" && r.UserName == "Ada Lovelace" && r.Quantity == 1
	})).Return(booking, nil).Once()

	got, err := o.SubmitBookingForm(ctx, "W1", validForm)
	require.NoError(t, err)
	assert.Equal(t, "b-1", got.ID)
	assert.True(t, store.IsBooked("W1"))

	again, err := o.SubmitBookingForm(ctx, "W1", validForm)
	require.NoError(t, err)
	assert.Same(t, got, again)
	ledger.AssertNumberOfCalls(t, "CreateBooking", 1)
}

func TestSubmitBookingForm_LedgerFailureLeavesCart(t *testing.T) {
	logger := zerolog.Nop()
	ctx := context.Background()
	ledger := new(mockLedger)
	store := newCart(t, w1, e1)
	o := New(store, ledger, nil, nil, &logger)

	ledger.On("CreateBooking", ctx, mock.Anything).Return(nil, domain.ErrNotFound).Once()

	_, err := o.SubmitBookingForm(ctx, "W1", validForm)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, store.IsBooked("W1"))
	assert.Len(t, store.Lines(), 2)
}

func TestSubmitBookingForm_RejectsProductsAndUnknown(t *testing.T) {
	logger := zerolog.Nop()
	o := New(newCart(t, p1), new(mockLedger), nil, nil, &logger)

	_, err := o.SubmitBookingForm(context.Background(), "P1", validForm)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = o.SubmitBookingForm(context.Background(), "W9", validForm)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

type stubFinder map[string]*models.Booking

func (s stubFinder) HasActiveBooking(_ context.Context, _ models.ItemType, itemID string) (bool, error) {
	return s[itemID] != nil, nil
}

func (s stubFinder) FindActiveBooking(_ context.Context, _ models.ItemType, itemID string) (*models.Booking, error) {
	return s[itemID], nil
}

func TestSubmitBookingForm_BookedElsewhere(t *testing.T) {
	logger := zerolog.Nop()
	ctx := context.Background()

	t.Run("ledger lookup returns the existing booking", func(t *testing.T) {
		ledger := new(mockLedger)
		existing := &models.Booking{ID: "b-old", ItemID: "W1", Status: models.StatusConfirmed}
		o := New(newCart(t, w1), ledger, nil, stubFinder{"W1": existing}, &logger)

		_, err := o.NextStep(ctx)
		require.NoError(t, err)

		got, err := o.SubmitBookingForm(ctx, "W1", validForm)
		require.NoError(t, err)
		assert.Equal(t, "b-old", got.ID)
		ledger.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
	})

	t.Run("no lookup available", func(t *testing.T) {
		ledger := new(mockLedger)
		store := newCart(t, w1)
		require.NoError(t, store.MarkBooked(ctx, "W1"))
		o := New(store, ledger, nil, stubBookedView{"W1": true}, &logger)

		got, err := o.SubmitBookingForm(ctx, "W1", validForm)
		assert.ErrorIs(t, err, ErrAlreadyBooked)
		assert.Nil(t, got)
		ledger.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
	})

	t.Run("marker survives but booking is gone", func(t *testing.T) {
		store := newCart(t, w1)
		require.NoError(t, store.MarkBooked(ctx, "W1"))
		o := New(store, new(mockLedger), nil, stubFinder{}, &logger)

		_, err := o.SubmitBookingForm(ctx, "W1", validForm)
		assert.ErrorIs(t, err, ErrAlreadyBooked)
	})
}

func TestNextStep_DerivesBookedFromLedger(t *testing.T) {
	logger := zerolog.Nop()
	ctx := context.Background()
	store := newCart(t, w1, e1)
	o := New(store, new(mockLedger), nil, stubBookedView{"W1": true}, &logger)

	step, err := o.NextStep(ctx)
	require.NoError(t, err)
	assert.Equal(t, StepBookingForm, step.Kind)
	assert.Equal(t, "E1", step.Item.ItemID)
	assert.True(t, store.IsBooked("W1"), "ledger hit is written back")
}

func TestPay(t *testing.T) {
	logger := zerolog.Nop()
	ctx := context.Background()

	t.Run("refused while bookings are missing", func(t *testing.T) {
		gateway := new(mockGateway)
		o := New(newCart(t, p1, w1), new(mockLedger), gateway, nil, &logger)
		_, err := o.Pay(ctx)
		assert.ErrorIs(t, err, domain.ErrValidation)
		gateway.AssertNotCalled(t, "ProcessPayment", mock.Anything, mock.Anything)
	})

	t.Run("empty cart", func(t *testing.T) {
		o := New(newCart(t), new(mockLedger), new(mockGateway), nil, &logger)
		_, err := o.Pay(ctx)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("failure keeps the cart", func(t *testing.T) {
		gateway := new(mockGateway)
		store := newCart(t, p1)
		o := New(store, new(mockLedger), gateway, nil, &logger)
		gateway.On("ProcessPayment", ctx, mock.Anything).Return(nil, errors.New("card network down")).Once()

		_, err := o.Pay(ctx)
		assert.Error(t, err)
		assert.Len(t, store.Lines(), 1)
	})

	t.Run("declined keeps the cart", func(t *testing.T) {
		gateway := new(mockGateway)
		store := newCart(t, p1)
		o := New(store, new(mockLedger), gateway, nil, &logger)
		gateway.On("ProcessPayment", ctx, mock.Anything).Return(&PaymentReceipt{Success: false}, nil).Once()

		_, err := o.Pay(ctx)
		assert.ErrorIs(t, err, ErrPaymentDeclined)
		assert.False(t, store.Empty())
	})

	t.Run("success clears the cart", func(t *testing.T) {
		gateway := new(mockGateway)
		store := newCart(t, p1)
		o := New(store, new(mockLedger), gateway, nil, &logger)
		gateway.On("ProcessPayment", ctx, mock.MatchedBy(func(d decimal.Decimal) bool {
			return d.Equal(decimal.NewFromInt(4))
		})).Return(&PaymentReceipt{Success: true, TransactionID: "txn_1"}, nil).Once()

		receipt, err := o.Pay(ctx)
		require.NoError(t, err)
		assert.Equal(t, "txn_1", receipt.TransactionID)
		assert.True(t, store.Empty())
	})
}

// serviceLedger adapts the booking service to the Ledger port for a guest.
type serviceLedger struct {
	svc *service.BookingService
}

func (l serviceLedger) CreateBooking(ctx context.Context, req BookingRequest) (*models.Booking, error) {
	view, _, err := l.svc.Create(ctx, service.CreateBookingInput{
		ItemID: req.ItemID, ItemType: req.ItemType, UserName: req.UserName, UserEmail: req.UserEmail, Quantity: req.Quantity,
	}, nil)
	if err != nil {
		return nil, err
	}
	return &view.Booking, nil
}

type paymentAdapter struct {
	svc *service.PaymentService
}

func (p paymentAdapter) ProcessPayment(ctx context.Context, amount decimal.Decimal) (*PaymentReceipt, error) {
	res, err := p.svc.Process(ctx, amount)
	if err != nil {
		return nil, err
	}
	return &PaymentReceipt{Success: res.Success, TransactionID: res.TransactionID}, nil
}

func TestCheckout_EndToEnd(t *testing.T) {
	logger := zerolog.Nop()
	ctx := context.Background()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	admin := &domain.Caller{UserID: 1, Role: models.RoleAdmin}
	catalog := service.NewCatalogService(db, &logger)
	for _, it := range []models.CatalogItem{w1, e1} {
		it := it
		require.NoError(t, catalog.Create(ctx, admin, &it))
	}
	bookings := service.NewBookingService(db, catalog, nil, nil, &logger)

	store := newCart(t, w1, e1)
	o := New(store, serviceLedger{svc: bookings}, paymentAdapter{svc: service.NewPaymentService(0, &logger)}, nil, &logger)

	step, err := o.NextStep(ctx)
	require.NoError(t, err)
	require.Equal(t, StepSelection, step.Kind)
	require.Len(t, step.Items, 2)

	_, err = o.SubmitBookingForm(ctx, "W1", validForm)
	require.NoError(t, err)
	assert.True(t, store.IsBooked("W1"))

	step, err = o.NextStep(ctx)
	require.NoError(t, err)
	require.Equal(t, StepBookingForm, step.Kind)
	assert.Equal(t, "E1", step.Item.ItemID)

	_, err = o.SubmitBookingForm(ctx, "E1", validForm)
	require.NoError(t, err)

	step, err = o.NextStep(ctx)
	require.NoError(t, err)
	require.Equal(t, StepPayment, step.Kind)

	receipt, err := o.Pay(ctx)
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.True(t, store.Empty())

	all, err := bookings.ListAll(ctx, admin)
	require.NoError(t, err)
	require.Len(t, all, 2)
	totals := map[string]decimal.Decimal{}
	for _, b := range all {
		assert.Equal(t, models.StatusPending, b.Status)
		assert.Nil(t, b.UserID)
		totals[b.ItemID] = b.TotalPrice
	}
	assert.True(t, decimal.NewFromInt(50).Equal(totals["W1"]))
	assert.True(t, decimal.NewFromInt(30).Equal(totals["E1"]))
}
