package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"urbanharvest/internal/domain"
	"urbanharvest/internal/models"
)

const bookingColumns = `id, user_id, item_id, item_type, quantity, total_price, status, booking_date,
	user_name, user_email, created_at, updated_at`

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var userID sql.NullInt64
	var itemType string
	err := row.Scan(
		&b.ID,
		&userID,
		&b.ItemID,
		&itemType,
		&b.Quantity,
		&b.TotalPrice,
		&b.Status,
		&b.BookingDate,
		&b.UserName,
		&b.UserEmail,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		id := userID.Int64
		b.UserID = &id
	}
	b.ItemType = models.ItemType(itemType)
	return &b, nil
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...interface{}) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

// CreateBooking inserts the booking. A second pending booking for the same
// user and item violates idx_bookings_pending_unique and yields ErrConflict.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `INSERT INTO bookings (` + bookingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	if booking.BookingDate.IsZero() {
		booking.BookingDate = now
	}
	var userID interface{}
	if booking.UserID != nil {
		userID = *booking.UserID
	}

	_, err := db.ExecContext(ctx, query,
		booking.ID,
		userID,
		booking.ItemID,
		string(booking.ItemType),
		booking.Quantity,
		booking.TotalPrice,
		booking.Status,
		booking.BookingDate,
		booking.UserName,
		booking.UserEmail,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("pending booking for %s %s: %w", booking.ItemType, booking.ItemID, domain.ErrConflict)
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	booking.CreatedAt = now
	booking.UpdatedAt = now
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapNoRows(err, "booking "+id)
	}
	return b, nil
}

func (db *DB) FindPendingBooking(ctx context.Context, userID int64, itemType models.ItemType, itemID string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE user_id = ? AND item_type = ? AND item_id = ? AND status = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, userID, string(itemType), itemID, models.StatusPending))
	if err != nil {
		return nil, mapNoRows(err, "pending booking")
	}
	return b, nil
}

// ListBookings returns every booking, newest first.
func (db *DB) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	return db.queryBookings(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY booking_date DESC, created_at DESC`)
}

func (db *DB) ListBookingsByUser(ctx context.Context, userID int64) ([]*models.Booking, error) {
	return db.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY booking_date DESC, created_at DESC`, userID)
}

// UpdateBookingStatus overwrites the status unconditionally.
func (db *DB) UpdateBookingStatus(ctx context.Context, id, status string) error {
	res, err := db.ExecContext(ctx, `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("another pending booking exists for this user and item: %w", domain.ErrConflict)
		}
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	return db.checkAffected(res, "booking "+id)
}

func (db *DB) DeleteBooking(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	return db.checkAffected(res, "booking "+id)
}

// CountActiveBookings counts pending and confirmed bookings of a user.
func (db *DB) CountActiveBookings(ctx context.Context, userID int64) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE user_id = ? AND status IN (?, ?)`,
		userID, models.StatusPending, models.StatusConfirmed,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active bookings: %w", err)
	}
	return count, nil
}
