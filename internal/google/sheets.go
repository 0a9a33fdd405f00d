package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"urbanharvest/internal/export"
	"urbanharvest/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// lastColumn is the column letter of the final entry in export.Headers.
const lastColumn = "L"

// statusColumn holds the booking status in export.Headers order.
const statusColumn = "C"

var errRowNotFound = errors.New("booking row not found")

// BookingsSheet mirrors the booking ledger into a Google spreadsheet, one
// row per booking keyed by the id in column A.
type BookingsSheet struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	rowCache      map[string]int
	cacheMu       sync.RWMutex
	logger        zerolog.Logger
}

// NewBookingsSheet authenticates with a service account credentials file.
func NewBookingsSheet(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, logger *zerolog.Logger) (*BookingsSheet, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return newBookingsSheet(srv, spreadsheetID, sheetName, logger), nil
}

func newBookingsSheet(srv *sheets.Service, spreadsheetID, sheetName string, logger *zerolog.Logger) *BookingsSheet {
	if sheetName == "" {
		sheetName = export.SheetName
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "sheets").Logger()
	}
	return &BookingsSheet{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		rowCache:      make(map[string]int),
		logger:        l,
	}
}

// Start warms the row cache and refreshes it hourly until ctx is done.
func (s *BookingsSheet) Start(ctx context.Context) {
	refresh := func() {
		wctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s.WarmUpCache(wctx); err != nil {
			s.logger.Warn().Err(err).Msg("row cache refresh failed")
		}
	}
	refresh()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

// TestConnection reads the header cell to verify access.
func (s *BookingsSheet) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// ServiceAccountEmail returns the address the spreadsheet must be shared with.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}
	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// WarmUpCache rebuilds the id to row index from column A.
func (s *BookingsSheet) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[string]int, len(resp.Values))
	for i, row := range resp.Values {
		// row 1 is the header
		if i == 0 || len(row) == 0 {
			continue
		}
		if id := cellString(row[0]); id != "" {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

// UpsertBooking rewrites the booking's row or appends one.
func (s *BookingsSheet) UpsertBooking(ctx context.Context, booking *models.BookingView) error {
	if booking == nil {
		return errors.New("booking is nil")
	}

	rowIdx, err := s.FindBookingRow(ctx, booking.ID)
	if errors.Is(err, errRowNotFound) {
		return s.appendBooking(ctx, booking)
	}
	if err != nil {
		return err
	}

	valueRange := &sheets.ValueRange{Values: [][]interface{}{export.RowValues(*booking)}}
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rowRange(rowIdx), valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (s *BookingsSheet) appendBooking(ctx context.Context, booking *models.BookingView) error {
	valueRange := &sheets.ValueRange{Values: [][]interface{}{export.RowValues(*booking)}}
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.rng("A:A"), valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}
	if resp.Updates != nil {
		if row, ok := rowFromRange(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(booking.ID, row)
		}
	}
	return nil
}

// UpdateBookingStatus touches only the status cell.
func (s *BookingsSheet) UpdateBookingStatus(ctx context.Context, bookingID, status string) error {
	rowIdx, err := s.FindBookingRow(ctx, bookingID)
	if err != nil {
		return err
	}

	cell := s.rng(fmt.Sprintf("%s%d", statusColumn, rowIdx))
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, cell, &sheets.ValueRange{
		Values: [][]interface{}{{status}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// DeleteBooking blanks the booking's row. A booking that was never mirrored
// is not an error.
func (s *BookingsSheet) DeleteBooking(ctx context.Context, bookingID string) error {
	rowIdx, err := s.FindBookingRow(ctx, bookingID)
	if errors.Is(err, errRowNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.rowRange(rowIdx), &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err == nil {
		s.deleteCachedRow(bookingID)
	}
	return err
}

// ReplaceBookings clears the sheet and writes the header plus every booking.
func (s *BookingsSheet) ReplaceBookings(ctx context.Context, bookings []models.BookingView) error {
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.rng("A1:"+lastColumn), &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to clear bookings sheet: %w", err)
	}

	header := make([]interface{}, len(export.Headers))
	for i, h := range export.Headers {
		header[i] = h
	}
	values := make([][]interface{}, 0, len(bookings)+1)
	values = append(values, header)
	for _, b := range bookings {
		values = append(values, export.RowValues(b))
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rng("A1"), &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update bookings sheet: %w", err)
	}

	cache := make(map[string]int, len(bookings))
	for i, b := range bookings {
		cache[b.ID] = i + 2
	}
	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()

	s.logger.Info().Int("rows", len(bookings)).Msg("bookings sheet replaced")
	return nil
}

// FindBookingRow returns the 1-based row of bookingID, consulting the cache first.
func (s *BookingsSheet) FindBookingRow(ctx context.Context, bookingID string) (int, error) {
	if bookingID == "" {
		return 0, errors.New("booking id is required")
	}
	if row, ok := s.getCachedRow(bookingID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if cellString(row[0]) == bookingID {
			rowIdx := i + 1
			s.setCachedRow(bookingID, rowIdx)
			return rowIdx, nil
		}
	}
	return 0, errRowNotFound
}

// ClearCache drops every cached row index.
func (s *BookingsSheet) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)
}

func (s *BookingsSheet) getCachedRow(id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *BookingsSheet) setCachedRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *BookingsSheet) deleteCachedRow(id string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, id)
}

// rng prefixes an A1 range with the sheet name, quoting it when needed.
func (s *BookingsSheet) rng(a1 string) string {
	name := s.sheetName
	if strings.ContainsAny(name, " '!") {
		name = "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name + "!" + a1
}

func (s *BookingsSheet) rowRange(row int) string {
	return s.rng(fmt.Sprintf("A%d:%s%d", row, lastColumn, row))
}

func cellString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// rowFromRange extracts the first row number of "Sheet!A10:L10".
func rowFromRange(a1 string) (int, bool) {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	if i := strings.Index(a1, ":"); i >= 0 {
		a1 = a1[:i]
	}
	digits := strings.TrimLeft(a1, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	row, err := strconv.Atoi(digits)
	if err != nil || row <= 0 {
		return 0, false
	}
	return row, true
}
