package service

import (
	"context"
	"time"

	"voyagr/internal/events"
	"voyagr/internal/metrics"
	"voyagr/internal/models"
)

// Side-effect action labels, used in logs, metrics and failure events.
const (
	actionSendEmail          = "send_email"
	actionTicketDelivery     = "schedule_ticket_delivery"
	actionConfirmInventory   = "confirm_inventory"
	actionReleaseInventory   = "release_inventory"
	actionScheduleTransition = "schedule_transition"
	actionAutoRefund         = "auto_refund"
	actionUpdateLedger       = "update_ledger"
	actionAwardLoyalty       = "award_loyalty"
	actionCompletionArtifact = "completion_artifact"
	actionRebookingOffer     = "rebooking_offer"
	actionReviewRequest      = "review_request"
)

// dispatchEffects routes a committed transition to its external actions.
// Every failure is caught here: logged, counted and published, never
// propagated. A committed status change is not rolled back by a failed
// notification.
func (m *StatusManager) dispatchEffects(ctx context.Context, booking *models.Booking, change *models.StatusChange) {
	switch change.ToStatus {
	case models.StatusConfirmed:
		m.runEffect(booking, change, actionSendEmail, func() error {
			return m.email.SendEmail(ctx, booking, "booking_confirmed", map[string]string{"status": change.ToStatus})
		})
		m.runEffect(booking, change, actionTicketDelivery, func() error {
			return m.inventory.ScheduleTicketDelivery(ctx, booking)
		})
		m.runEffect(booking, change, actionConfirmInventory, func() error {
			return m.inventory.ConfirmHold(ctx, booking)
		})
		m.scheduleTransition(ctx, booking, change, models.StatusUpcoming, "upcoming window",
			booking.DateTime.Add(-hoursToDuration(m.cfg.UpcomingThresholdHours)))

	case models.StatusUpcoming:
		m.runEffect(booking, change, actionSendEmail, func() error {
			return m.email.SendEmail(ctx, booking, "booking_reminder", map[string]string{"date": booking.DateTime.Format(time.RFC3339)})
		})
		m.scheduleTransition(ctx, booking, change, models.StatusExploring, "experience start",
			booking.DateTime.Add(-hoursToDuration(m.cfg.ExploringStartOffsetHours)))

	case models.StatusExploring:
		m.scheduleTransition(ctx, booking, change, models.StatusCompleted, "experience end",
			booking.DateTime.Add(hoursToDuration(m.durationHours(booking))))

	case models.StatusCompleted:
		m.scheduleReviewRequest(booking)
		m.runEffect(booking, change, actionAwardLoyalty, func() error {
			return m.loyalty.AwardPoints(ctx, booking)
		})
		m.runEffect(booking, change, actionCompletionArtifact, func() error {
			return m.loyalty.GenerateCompletionArtifact(ctx, booking)
		})

	case models.StatusCancelled:
		m.runEffect(booking, change, actionSendEmail, func() error {
			return m.email.SendEmail(ctx, booking, "booking_cancelled", map[string]string{"reason": change.Reason})
		})
		m.runEffect(booking, change, actionReleaseInventory, func() error {
			return m.inventory.ReleaseHold(ctx, booking)
		})
		// Отмена после оплаты автоматически запускает полный возврат
		if change.FromStatus == models.StatusConfirmed || change.FromStatus == models.StatusUpcoming {
			m.runEffect(booking, change, actionAutoRefund, func() error {
				return m.finance.ProcessRefund(ctx, booking, "full")
			})
		}

	case models.StatusRefunded, models.StatusPartiallyRefunded:
		kind := "full"
		if change.ToStatus == models.StatusPartiallyRefunded {
			kind = "partial"
		}
		m.runEffect(booking, change, actionSendEmail, func() error {
			return m.email.SendEmail(ctx, booking, "refund_confirmation", map[string]string{
				"refund_type": kind,
				"amount":      change.Metadata["refund_amount"],
			})
		})
		m.runEffect(booking, change, actionUpdateLedger, func() error {
			return m.finance.UpdateLedger(ctx, booking, kind)
		})

	case models.StatusFailed:
		m.runEffect(booking, change, actionSendEmail, func() error {
			return m.email.SendEmail(ctx, booking, "booking_failed", map[string]string{"reason": change.Reason})
		})
		m.runEffect(booking, change, actionReleaseInventory, func() error {
			return m.inventory.ReleaseHold(ctx, booking)
		})
		m.runEffect(booking, change, actionRebookingOffer, func() error {
			return m.finance.CreateRebookingOffer(ctx, booking)
		})
	}
}

// runEffect executes one action, absorbing its error into log, metric and
// event.
func (m *StatusManager) runEffect(booking *models.Booking, change *models.StatusChange, action string, fn func() error) {
	err := fn()
	if err == nil {
		return
	}

	m.logger.Error().Err(err).
		Str("booking_id", booking.ID).
		Str("status", change.ToStatus).
		Str("action", action).
		Msg("side effect failed")
	metrics.IncSideEffectFailure(action)
	m.publish(events.EventSideEffectFailed, events.SideEffectFailedPayload{
		BookingID: booking.ID,
		Status:    change.ToStatus,
		Action:    action,
		Error:     err.Error(),
	})
}

// scheduleTransition persists a deferred transition. The row is durable; the
// dispatcher re-validates the edge when it fires, so a transition that became
// illegal in the meantime is rejected, not forced. A fire time already in
// the past is scheduled for immediate pickup.
func (m *StatusManager) scheduleTransition(ctx context.Context, booking *models.Booking, change *models.StatusChange, toStatus, reason string, fireAt time.Time) {
	st := &models.ScheduledTransition{
		BookingID: booking.ID,
		ToStatus:  toStatus,
		Reason:    reason,
		FireAt:    fireAt,
	}
	if err := m.repo.ScheduleTransition(ctx, st); err != nil {
		m.logger.Error().Err(err).
			Str("booking_id", booking.ID).
			Str("to_status", toStatus).
			Msg("schedule transition failed")
		metrics.IncSideEffectFailure(actionScheduleTransition)
		m.publish(events.EventSideEffectFailed, events.SideEffectFailedPayload{
			BookingID: booking.ID,
			Status:    change.ToStatus,
			Action:    actionScheduleTransition,
			Error:     err.Error(),
		})
		return
	}

	m.publish(events.EventTransitionScheduled, st)
}

// scheduleReviewRequest defers the review email. In-memory is acceptable
// here: a lost timer loses one marketing email, not a state transition.
func (m *StatusManager) scheduleReviewRequest(booking *models.Booking) {
	delay := hoursToDuration(m.cfg.ReviewRequestDelayHours)
	snapshot := *booking
	time.AfterFunc(delay, func() {
		err := m.email.SendEmail(context.Background(), &snapshot, "review_request", map[string]string{"booking_id": snapshot.ID})
		if err != nil {
			m.logger.Error().Err(err).Str("booking_id", snapshot.ID).Msg("review request send failed")
			metrics.IncSideEffectFailure(actionReviewRequest)
		}
	})
}
