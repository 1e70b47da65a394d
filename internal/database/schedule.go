package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"voyagr/internal/models"
)

// ScheduleTransition persists a deferred status change. Rows survive a
// process restart; legality is re-checked by the engine when they fire.
func (db *DB) ScheduleTransition(ctx context.Context, st *models.ScheduledTransition) error {
	now := time.Now()
	result, err := db.db.ExecContext(ctx,
		`INSERT INTO scheduled_transitions (booking_id, to_status, reason, fire_at, status, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		st.BookingID, st.ToStatus, st.Reason, st.FireAt, models.ScheduleStatusPending, now,
	)
	if err != nil {
		return fmt.Errorf("failed to schedule transition: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	st.ID = id
	st.Status = models.ScheduleStatusPending
	st.CreatedAt = now
	return nil
}

// GetDueTransitions returns pending transitions whose fire time has passed,
// oldest first.
func (db *DB) GetDueTransitions(ctx context.Context, now time.Time, limit int) ([]models.ScheduledTransition, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT id, booking_id, to_status, reason, fire_at, status, created_at, fired_at
         FROM scheduled_transitions
         WHERE status = ? AND fire_at <= ?
         ORDER BY fire_at ASC LIMIT ?`,
		models.ScheduleStatusPending, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get due transitions: %w", err)
	}
	defer rows.Close()

	var out []models.ScheduledTransition
	for rows.Next() {
		var st models.ScheduledTransition
		var reason sql.NullString
		var firedAt sql.NullTime
		if err := rows.Scan(&st.ID, &st.BookingID, &st.ToStatus, &reason, &st.FireAt, &st.Status, &st.CreatedAt, &firedAt); err != nil {
			return nil, fmt.Errorf("failed to scan scheduled transition: %w", err)
		}
		st.Reason = reason.String
		if firedAt.Valid {
			t := firedAt.Time
			st.FiredAt = &t
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ResolveTransition marks a scheduled transition done or skipped.
func (db *DB) ResolveTransition(ctx context.Context, id int64, status string) error {
	now := time.Now()
	_, err := db.db.ExecContext(ctx,
		`UPDATE scheduled_transitions SET status = ?, fired_at = ? WHERE id = ?`,
		status, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve scheduled transition: %w", err)
	}
	return nil
}
