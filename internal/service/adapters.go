package service

import (
	"context"

	"voyagr/internal/domain"
	"voyagr/internal/events"
	"voyagr/internal/models"

	"github.com/rs/zerolog"
)

// The integration adapters below turn collaborator calls into bus events.
// Downstream consumers (mailer, inventory, billing, loyalty) subscribe to
// the command topics and do the actual work; this service only records
// intent.

// EmailCommand is the payload for email_requested events.
type EmailCommand struct {
	BookingID string            `json:"booking_id"`
	Email     string            `json:"email"`
	Template  string            `json:"template"`
	Data      map[string]string `json:"data,omitempty"`
}

// IntegrationCommand is the payload for inventory, finance and loyalty
// command events.
type IntegrationCommand struct {
	BookingID string `json:"booking_id"`
	Operation string `json:"operation"`
	Kind      string `json:"kind,omitempty"`
}

type EventEmailSender struct {
	bus    domain.EventPublisher
	logger *zerolog.Logger
}

func NewEventEmailSender(bus domain.EventPublisher, logger *zerolog.Logger) *EventEmailSender {
	return &EventEmailSender{bus: bus, logger: logger}
}

func (s *EventEmailSender) SendEmail(ctx context.Context, booking *models.Booking, template string, data map[string]string) error {
	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("template", template).
		Msg("email requested")
	return s.bus.PublishJSON(events.EventEmailRequested, EmailCommand{
		BookingID: booking.ID,
		Email:     booking.CustomerEmail,
		Template:  template,
		Data:      data,
	})
}

type EventInventoryService struct {
	bus domain.EventPublisher
}

func NewEventInventoryService(bus domain.EventPublisher) *EventInventoryService {
	return &EventInventoryService{bus: bus}
}

func (s *EventInventoryService) command(bookingID, operation string) error {
	return s.bus.PublishJSON(events.EventInventoryCommand, IntegrationCommand{
		BookingID: bookingID,
		Operation: operation,
	})
}

func (s *EventInventoryService) ConfirmHold(ctx context.Context, booking *models.Booking) error {
	return s.command(booking.ID, "confirm_hold")
}

func (s *EventInventoryService) ReleaseHold(ctx context.Context, booking *models.Booking) error {
	return s.command(booking.ID, "release_hold")
}

func (s *EventInventoryService) ScheduleTicketDelivery(ctx context.Context, booking *models.Booking) error {
	return s.command(booking.ID, "schedule_ticket_delivery")
}

type EventFinanceService struct {
	bus domain.EventPublisher
}

func NewEventFinanceService(bus domain.EventPublisher) *EventFinanceService {
	return &EventFinanceService{bus: bus}
}

func (s *EventFinanceService) ProcessRefund(ctx context.Context, booking *models.Booking, kind string) error {
	return s.bus.PublishJSON(events.EventFinanceCommand, IntegrationCommand{
		BookingID: booking.ID,
		Operation: "process_refund",
		Kind:      kind,
	})
}

func (s *EventFinanceService) UpdateLedger(ctx context.Context, booking *models.Booking, kind string) error {
	return s.bus.PublishJSON(events.EventFinanceCommand, IntegrationCommand{
		BookingID: booking.ID,
		Operation: "update_ledger",
		Kind:      kind,
	})
}

func (s *EventFinanceService) CreateRebookingOffer(ctx context.Context, booking *models.Booking) error {
	return s.bus.PublishJSON(events.EventFinanceCommand, IntegrationCommand{
		BookingID: booking.ID,
		Operation: "create_rebooking_offer",
	})
}

type EventLoyaltyService struct {
	bus domain.EventPublisher
}

func NewEventLoyaltyService(bus domain.EventPublisher) *EventLoyaltyService {
	return &EventLoyaltyService{bus: bus}
}

func (s *EventLoyaltyService) AwardPoints(ctx context.Context, booking *models.Booking) error {
	return s.bus.PublishJSON(events.EventLoyaltyCommand, IntegrationCommand{
		BookingID: booking.ID,
		Operation: "award_points",
	})
}

func (s *EventLoyaltyService) GenerateCompletionArtifact(ctx context.Context, booking *models.Booking) error {
	return s.bus.PublishJSON(events.EventLoyaltyCommand, IntegrationCommand{
		BookingID: booking.ID,
		Operation: "completion_artifact",
	})
}
