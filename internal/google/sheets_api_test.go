package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"urbanharvest/internal/models"

	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func setupMockServer(ctx context.Context) (*http.ServeMux, *httptest.Server, *BookingsSheet) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	srv, _ := sheets.NewService(ctx, option.WithEndpoint(server.URL), option.WithoutAuthentication())
	return mux, server, newBookingsSheet(srv, "bookings_tid", "Bookings", nil)
}

func sampleView(id string) *models.BookingView {
	v := models.NewBookingView(models.Booking{
		ID:          id,
		ItemID:      "ev-1",
		ItemType:    models.ItemTypeEvent,
		Quantity:    2,
		TotalPrice:  decimal.NewFromInt(20),
		Status:      models.StatusPending,
		BookingDate: time.Now(),
		UserName:    "Ada",
		UserEmail:   "ada@example.com",
	}, nil)
	return &v
}

func TestBookingsSheet_TestConnection(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"Booking ID"}}})
	})
	if err := s.TestConnection(ctx); err != nil {
		t.Errorf("TestConnection failed: %v", err)
	}
}

func TestBookingsSheet_WarmUpCache(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Values: [][]interface{}{{"Booking ID"}, {"b-123"}, {}, {"b-456"}},
		})
	})
	if err := s.WarmUpCache(ctx); err != nil {
		t.Fatalf("WarmUpCache failed: %v", err)
	}
	if row, ok := s.getCachedRow("b-123"); !ok || row != 2 {
		t.Errorf("Expected row 2 for b-123, got %d", row)
	}
	if row, ok := s.getCachedRow("b-456"); !ok || row != 4 {
		t.Errorf("Expected row 4 for b-456, got %d", row)
	}
	if _, ok := s.getCachedRow("Booking ID"); ok {
		t.Error("header must not be cached")
	}
}

func TestBookingsSheet_UpsertBooking_Append(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"Booking ID"}}})
	})
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A:A:append", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Bookings!A10:L10"},
		})
	})
	if err := s.UpsertBooking(ctx, sampleView("b-789")); err != nil {
		t.Fatalf("UpsertBooking failed: %v", err)
	}
	if row, _ := s.getCachedRow("b-789"); row != 10 {
		t.Errorf("Expected cached row 10, got %d", row)
	}
}

func TestBookingsSheet_UpsertBooking_Update(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	s.setCachedRow("b-123", 2)

	var got sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A2:L2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})
	if err := s.UpsertBooking(ctx, sampleView("b-123")); err != nil {
		t.Fatalf("UpsertBooking failed: %v", err)
	}
	if len(got.Values) != 1 || len(got.Values[0]) != 12 {
		t.Fatalf("expected one 12-column row, got %v", got.Values)
	}
	if got.Values[0][5] != models.DeletedItemTitle {
		t.Errorf("expected deleted item title, got %v", got.Values[0][5])
	}
}

func TestBookingsSheet_UpsertBooking_Nil(t *testing.T) {
	s := &BookingsSheet{rowCache: map[string]int{}}
	if err := s.UpsertBooking(context.Background(), nil); err == nil {
		t.Error("expected error for nil booking")
	}
}

func TestBookingsSheet_DeleteBooking(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	s.setCachedRow("b-456", 3)
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A3:L3:clear", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ClearValuesResponse{})
	})
	if err := s.DeleteBooking(ctx, "b-456"); err != nil {
		t.Errorf("DeleteBooking failed: %v", err)
	}
	if _, ok := s.getCachedRow("b-456"); ok {
		t.Error("Expected b-456 to be removed from cache")
	}
}

func TestBookingsSheet_DeleteBooking_Unknown(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"Booking ID"}}})
	})
	if err := s.DeleteBooking(ctx, "b-missing"); err != nil {
		t.Errorf("deleting an unmirrored booking should succeed, got %v", err)
	}
}

func TestBookingsSheet_UpdateBookingStatus(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	s.setCachedRow("b-123", 2)
	called := false
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!C2", func(w http.ResponseWriter, r *http.Request) {
		called = true
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})
	if err := s.UpdateBookingStatus(ctx, "b-123", "confirmed"); err != nil {
		t.Errorf("UpdateBookingStatus failed: %v", err)
	}
	if !called {
		t.Error("status cell was not written")
	}
}

func TestBookingsSheet_ReplaceBookings(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	s.setCachedRow("stale", 9)
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A1:L:clear", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ClearValuesResponse{})
	})
	var got sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	views := []models.BookingView{*sampleView("b-1"), *sampleView("b-2")}
	if err := s.ReplaceBookings(ctx, views); err != nil {
		t.Fatalf("ReplaceBookings failed: %v", err)
	}
	if len(got.Values) != 3 {
		t.Errorf("expected header plus 2 rows, got %d", len(got.Values))
	}
	if row, _ := s.getCachedRow("b-2"); row != 3 {
		t.Errorf("Expected cached row 3, got %d", row)
	}
	if _, ok := s.getCachedRow("stale"); ok {
		t.Error("stale cache entry survived a replace")
	}
}

func TestBookingsSheet_FindBookingRow_FullScan(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Values: [][]interface{}{{"Booking ID"}, {"b-999"}},
		})
	})
	row, err := s.FindBookingRow(ctx, "b-999")
	if err != nil {
		t.Fatalf("FindBookingRow failed: %v", err)
	}
	if row != 2 {
		t.Errorf("Expected row 2, got %d", row)
	}
	if _, err := s.FindBookingRow(ctx, ""); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestRangeHelpers(t *testing.T) {
	s := &BookingsSheet{sheetName: "Booking Ledger"}
	if got := s.rng("A1"); got != "'Booking Ledger'!A1" {
		t.Errorf("unexpected quoted range %q", got)
	}
	s.sheetName = "Bookings"
	if got := s.rowRange(7); got != "Bookings!A7:L7" {
		t.Errorf("unexpected row range %q", got)
	}

	cases := map[string]int{"Bookings!A10:L10": 10, "'My Sheet'!A3": 3, "B22": 22}
	for in, want := range cases {
		if row, ok := rowFromRange(in); !ok || row != want {
			t.Errorf("rowFromRange(%q) = %d, %v", in, row, ok)
		}
	}
	if _, ok := rowFromRange("Bookings!A:A"); ok {
		t.Error("expected no row for a column range")
	}
	if cellString(float64(42)) != "42" || cellString(" b-1 ") != "b-1" || cellString(nil) != "" {
		t.Error("cellString conversions are off")
	}
}

func TestServiceAccountEmail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	if err := os.WriteFile(path, []byte(`{"client_email":"bot@project.iam.gserviceaccount.com"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	email, err := ServiceAccountEmail(path)
	if err != nil {
		t.Fatalf("ServiceAccountEmail failed: %v", err)
	}
	if email != "bot@project.iam.gserviceaccount.com" {
		t.Errorf("unexpected email %q", email)
	}
	if _, err := ServiceAccountEmail(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNewBookingsSheet_BadCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	if err := os.WriteFile(path, []byte(`not json`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewBookingsSheet(context.Background(), path, "sheet", "", nil); err == nil {
		t.Error("expected credentials parse error")
	}
}
