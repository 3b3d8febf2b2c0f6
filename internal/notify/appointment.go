package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wolfman30/clinicdesk/internal/events"
	"github.com/wolfman30/clinicdesk/internal/settings"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

const appointmentConsumer = "notify.appointment"

// PatientDirectory resolves patient contact details.
type PatientDirectory interface {
	PatientContact(ctx context.Context, orgID, patientID string) (name, email string, err error)
}

// ProcessedTracker deduplicates deliveries per consumer.
type ProcessedTracker interface {
	AlreadyProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
}

// AppointmentNotifier emails patients when their appointment is confirmed or
// cancelled. It is an outbox DeliveryHandler.
type AppointmentNotifier struct {
	email     EmailSender
	patients  PatientDirectory
	settings  settings.Reader
	processed ProcessedTracker
	logger    *logging.Logger
}

func NewAppointmentNotifier(email EmailSender, patients PatientDirectory, cfg settings.Reader, processed ProcessedTracker, logger *logging.Logger) *AppointmentNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentNotifier{
		email:     email,
		patients:  patients,
		settings:  cfg,
		processed: processed,
		logger:    logger,
	}
}

// Handle implements events.DeliveryHandler.
func (n *AppointmentNotifier) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if entry.Type != events.AppointmentConfirmed && entry.Type != events.AppointmentCancelled {
		return nil
	}
	if n.email == nil || n.patients == nil {
		return nil
	}
	eventID := entry.ID.String()
	if n.processed != nil {
		seen, err := n.processed.AlreadyProcessed(ctx, appointmentConsumer, eventID)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
	}

	var evt events.AppointmentChangedV1
	if err := json.Unmarshal(entry.Payload, &evt); err != nil {
		// A malformed payload will never succeed; acknowledge it.
		n.logger.Error("notify: bad appointment payload", "error", err, "event_id", eventID)
		return nil
	}

	cfg := settings.Default(entry.OrgID)
	if n.settings != nil {
		loaded, err := n.settings.Get(ctx, entry.OrgID)
		if err != nil {
			return fmt.Errorf("notify: load settings: %w", err)
		}
		cfg = loaded
	}
	if !cfg.NotifyPatients {
		return nil
	}

	name, email, err := n.patients.PatientContact(ctx, entry.OrgID, evt.PatientID)
	if err != nil {
		return fmt.Errorf("notify: patient contact: %w", err)
	}
	if strings.TrimSpace(email) == "" {
		n.logger.Debug("notify: patient has no email", "org_id", entry.OrgID, "patient_id", evt.PatientID)
		return n.markProcessed(ctx, eventID)
	}

	msg := appointmentMessage(entry.Type, evt, cfg)
	msg.To = email
	msg.ToName = name
	msg.ReplyTo = cfg.Email
	msg.Category = entry.Type
	if err := n.email.Send(ctx, msg); err != nil {
		return err
	}
	n.logger.Info("appointment notification sent", "org_id", entry.OrgID, "appointment_id", evt.AppointmentID, "type", entry.Type)
	return n.markProcessed(ctx, eventID)
}

func (n *AppointmentNotifier) markProcessed(ctx context.Context, eventID string) error {
	if n.processed == nil {
		return nil
	}
	_, err := n.processed.MarkProcessed(ctx, appointmentConsumer, eventID)
	return err
}

func appointmentMessage(eventType string, evt events.AppointmentChangedV1, cfg *settings.Settings) EmailMessage {
	when := evt.StartsAt.In(cfg.Location()).Format("Monday, January 2 at 3:04 PM MST")
	if eventType == events.AppointmentCancelled {
		body := fmt.Sprintf("Your appointment at %s on %s has been cancelled.", cfg.ClinicName, when)
		if evt.CancelReason != "" {
			body += "\nReason: " + evt.CancelReason
		}
		if cfg.Phone != "" {
			body += "\nPlease call " + cfg.Phone + " to rebook."
		}
		return EmailMessage{
			Subject: fmt.Sprintf("%s: appointment cancelled", cfg.ClinicName),
			Body:    body,
		}
	}
	body := fmt.Sprintf("Your appointment at %s is confirmed for %s.", cfg.ClinicName, when)
	if cfg.Address != "" {
		body += "\nAddress: " + cfg.Address
	}
	return EmailMessage{
		Subject: fmt.Sprintf("%s: appointment confirmed", cfg.ClinicName),
		Body:    body,
	}
}
