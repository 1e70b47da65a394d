package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"voyagr/internal/models"
)

var activeStatuses = []string{
	models.StatusPending,
	models.StatusConfirmed,
	models.StatusUpcoming,
	models.StatusExploring,
}

// CreateBooking inserts a new booking with its products and seeds nothing
// into the history: the first history entry belongs to the first transition.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.LastUpdated = now

	query := `INSERT INTO bookings (
                id, customer_id, customer_name, customer_email, status, overall_status,
                date_time, duration_hours, total_amount, currency, created_at, last_updated
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		booking.ID,
		booking.CustomerID,
		booking.CustomerName,
		booking.CustomerEmail,
		booking.Status,
		booking.OverallStatus,
		booking.DateTime,
		booking.DurationHours,
		booking.TotalAmount,
		booking.Currency,
		booking.CreatedAt,
		booking.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	for _, p := range booking.Products {
		st := booking.ProductStatuses[p.ID]
		_, err = tx.ExecContext(ctx,
			`INSERT INTO booking_products (booking_id, product_id, product_type, product_name, status) VALUES (?, ?, ?, ?, ?)`,
			booking.ID, p.ID, p.Type, p.Name, st,
		)
		if err != nil {
			return fmt.Errorf("failed to insert booking product: %w", err)
		}
	}

	return tx.Commit()
}

// GetBooking loads a booking with its products, per-product statuses and
// full status history, oldest history entry first.
func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT id, customer_id, customer_name, customer_email, status, overall_status,
                date_time, duration_hours, total_amount, currency, created_at, last_updated
            FROM bookings WHERE id = ?`

	var booking models.Booking
	var overall sql.NullString
	err := db.db.QueryRowContext(ctx, query, id).Scan(
		&booking.ID,
		&booking.CustomerID,
		&booking.CustomerName,
		&booking.CustomerEmail,
		&booking.Status,
		&overall,
		&booking.DateTime,
		&booking.DurationHours,
		&booking.TotalAmount,
		&booking.Currency,
		&booking.CreatedAt,
		&booking.LastUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, ErrBookingNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	booking.OverallStatus = overall.String

	if err := db.loadProducts(ctx, &booking); err != nil {
		return nil, err
	}
	if err := db.loadHistory(ctx, &booking); err != nil {
		return nil, err
	}

	return &booking, nil
}

func (db *DB) loadProducts(ctx context.Context, booking *models.Booking) error {
	rows, err := db.db.QueryContext(ctx,
		`SELECT product_id, product_type, product_name, status FROM booking_products WHERE booking_id = ? ORDER BY rowid`,
		booking.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to load booking products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Product
		var st sql.NullString
		if err := rows.Scan(&p.ID, &p.Type, &p.Name, &st); err != nil {
			return fmt.Errorf("failed to scan booking product: %w", err)
		}
		booking.Products = append(booking.Products, p)
		if st.Valid && st.String != "" {
			if booking.ProductStatuses == nil {
				booking.ProductStatuses = make(map[string]string)
			}
			booking.ProductStatuses[p.ID] = st.String
		}
	}
	return rows.Err()
}

func (db *DB) loadHistory(ctx context.Context, booking *models.Booking) error {
	rows, err := db.db.QueryContext(ctx,
		`SELECT id, from_status, to_status, reason, triggered_by, metadata, timestamp
         FROM status_history WHERE booking_id = ? ORDER BY timestamp ASC, rowid ASC`,
		booking.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to load status history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var change models.StatusChange
		var reason, meta sql.NullString
		if err := rows.Scan(&change.ID, &change.FromStatus, &change.ToStatus, &reason, &change.TriggeredBy, &meta, &change.Timestamp); err != nil {
			return fmt.Errorf("failed to scan status change: %w", err)
		}
		change.BookingID = booking.ID
		change.Reason = reason.String
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &change.Metadata); err != nil {
				return fmt.Errorf("failed to decode change metadata: %w", err)
			}
		}
		booking.StatusHistory = append(booking.StatusHistory, change)
	}
	return rows.Err()
}

// SaveBooking commits the booking's current status, product statuses and any
// new history entries in a single transaction. History rows already present
// are left untouched (insert-or-ignore by entry id), so the history stays
// append-only.
func (db *DB) SaveBooking(ctx context.Context, booking *models.Booking) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, overall_status = ?, last_updated = ? WHERE id = ?`,
		booking.Status, booking.OverallStatus, booking.LastUpdated, booking.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("booking %s: %w", booking.ID, ErrBookingNotFound)
	}

	for productID, st := range booking.ProductStatuses {
		_, err = tx.ExecContext(ctx,
			`UPDATE booking_products SET status = ? WHERE booking_id = ? AND product_id = ?`,
			st, booking.ID, productID,
		)
		if err != nil {
			return fmt.Errorf("failed to update product status: %w", err)
		}
	}

	for _, change := range booking.StatusHistory {
		var meta []byte
		if len(change.Metadata) > 0 {
			meta, err = json.Marshal(change.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode change metadata: %w", err)
			}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO status_history (id, booking_id, from_status, to_status, reason, triggered_by, metadata, timestamp)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			change.ID, booking.ID, change.FromStatus, change.ToStatus, change.Reason, change.TriggeredBy, string(meta), change.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to append status change: %w", err)
		}
	}

	return tx.Commit()
}

// ListActiveBookings returns bookings in any non-terminal, in-flight status.
// Histories are loaded because the sweep needs creation/transition times.
func (db *DB) ListActiveBookings(ctx context.Context) ([]*models.Booking, error) {
	placeholders := strings.Repeat("?,", len(activeStatuses))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(`SELECT id FROM bookings WHERE status IN (%s) ORDER BY date_time ASC`, placeholders)

	args := make([]interface{}, len(activeStatuses))
	for i, s := range activeStatuses {
		args[i] = s
	}

	return db.listByQuery(ctx, query, args...)
}

// ListBookings returns every booking, newest first.
func (db *DB) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	return db.listByQuery(ctx, `SELECT id FROM bookings ORDER BY created_at DESC`)
}

func (db *DB) listByQuery(ctx context.Context, query string, args ...interface{}) ([]*models.Booking, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan booking id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	bookings := make([]*models.Booking, 0, len(ids))
	for _, id := range ids {
		b, err := db.GetBooking(ctx, id)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}

// PurgeStatusHistory deletes history entries older than the cutoff, always
// keeping the most recent entry of every booking so the current status stays
// explainable. Returns the number of removed rows.
func (db *DB) PurgeStatusHistory(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := db.db.ExecContext(ctx,
		`DELETE FROM status_history
         WHERE timestamp < ?
         AND id NOT IN (
             SELECT id FROM (
                 SELECT id, MAX(timestamp) FROM status_history GROUP BY booking_id
             )
         )`,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge status history: %w", err)
	}
	return res.RowsAffected()
}
