package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"urbanharvest/internal/domain"
	"urbanharvest/internal/models"
)

const productColumns = `id, title, description, price, image, category, availability, created_at, updated_at`

const scheduledColumns = `id, title, description, price, image, category, date, location, latitude, longitude, created_at, updated_at`

// catalogTable maps a type tag to its backing table.
func catalogTable(t models.ItemType) (string, error) {
	switch t {
	case models.ItemTypeProduct:
		return "products", nil
	case models.ItemTypeWorkshop:
		return "workshops", nil
	case models.ItemTypeEvent:
		return "events", nil
	}
	return "", domain.NewValidationError("itemType", fmt.Sprintf("unknown item type %q", t))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCatalogItem(row rowScanner, t models.ItemType) (*models.CatalogItem, error) {
	item := &models.CatalogItem{Type: t}
	if t == models.ItemTypeProduct {
		err := row.Scan(&item.ID, &item.Title, &item.Description, &item.Price, &item.Image,
			&item.Category, &item.Availability, &item.CreatedAt, &item.UpdatedAt)
		return item, err
	}

	var lat, lng sql.NullFloat64
	err := row.Scan(&item.ID, &item.Title, &item.Description, &item.Price, &item.Image,
		&item.Category, &item.Date, &item.Location, &lat, &lng, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lat.Valid && lng.Valid {
		item.Coordinates = &models.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
	}
	return item, nil
}

func columnsFor(t models.ItemType) string {
	if t == models.ItemTypeProduct {
		return productColumns
	}
	return scheduledColumns
}

func (db *DB) GetCatalogItem(ctx context.Context, t models.ItemType, id string) (*models.CatalogItem, error) {
	table, err := catalogTable(t)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, columnsFor(t), table)
	item, err := scanCatalogItem(db.QueryRowContext(ctx, query, id), t)
	if err != nil {
		return nil, mapNoRows(err, fmt.Sprintf("%s %s", t, id))
	}
	return item, nil
}

func (db *DB) ListCatalogItems(ctx context.Context, t models.ItemType) ([]*models.CatalogItem, error) {
	table, err := catalogTable(t)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at, id`, columnsFor(t), table)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	defer rows.Close()

	var items []*models.CatalogItem
	for rows.Next() {
		item, err := scanCatalogItem(rows, t)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", t, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (db *DB) CreateCatalogItem(ctx context.Context, item *models.CatalogItem) error {
	table, err := catalogTable(item.Type)
	if err != nil {
		return err
	}

	now := time.Now()
	if item.Category == "" {
		item.Category = item.Type.Category()
	}

	if item.Type == models.ItemTypeProduct {
		_, err = db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, table, productColumns),
			item.ID, item.Title, item.Description, item.Price, item.Image, item.Category, item.Availability, now, now)
	} else {
		lat, lng := coordinateArgs(item.Coordinates)
		_, err = db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, table, scheduledColumns),
			item.ID, item.Title, item.Description, item.Price, item.Image, item.Category, item.Date, item.Location, lat, lng, now, now)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s %s already exists: %w", item.Type, item.ID, domain.ErrConflict)
		}
		return fmt.Errorf("failed to create %s: %w", item.Type, err)
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	return nil
}

func (db *DB) UpdateCatalogItem(ctx context.Context, item *models.CatalogItem) error {
	table, err := catalogTable(item.Type)
	if err != nil {
		return err
	}

	now := time.Now()
	var res sql.Result
	if item.Type == models.ItemTypeProduct {
		res, err = db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET title = ?, description = ?, price = ?, image = ?,
			availability = ?, updated_at = ? WHERE id = ?`, table),
			item.Title, item.Description, item.Price, item.Image, item.Availability, now, item.ID)
	} else {
		lat, lng := coordinateArgs(item.Coordinates)
		res, err = db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET title = ?, description = ?, price = ?, image = ?,
			date = ?, location = ?, latitude = ?, longitude = ?, updated_at = ? WHERE id = ?`, table),
			item.Title, item.Description, item.Price, item.Image, item.Date, item.Location, lat, lng, now, item.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", item.Type, err)
	}
	if err := db.checkAffected(res, fmt.Sprintf("%s %s", item.Type, item.ID)); err != nil {
		return err
	}
	item.UpdatedAt = now
	return nil
}

// DeleteCatalogItem removes the record only. Bookings that reference it stay.
func (db *DB) DeleteCatalogItem(ctx context.Context, t models.ItemType, id string) error {
	table, err := catalogTable(t)
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", t, err)
	}
	return db.checkAffected(res, fmt.Sprintf("%s %s", t, id))
}

func coordinateArgs(c *models.Coordinates) (interface{}, interface{}) {
	if c == nil {
		return nil, nil
	}
	return c.Lat, c.Lng
}
