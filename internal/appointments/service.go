package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/saludtb/tb-assistant/internal/registry"
	"github.com/saludtb/tb-assistant/pkg/logging"
)

// DefaultReason is used when the patient does not state a visit reason.
const DefaultReason = "Control de Tuberculosis"

// ValidationError marks a rejection the patient can act on. Message is
// user-facing Spanish text.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Updater is the slice of the patient registry this service writes through.
type Updater interface {
	UpdateAppointment(ctx context.Context, req registry.UpdateAppointmentRequest) (*registry.Appointment, error)
}

// Service applies clinic rules and commits appointment changes to the
// patient registry. Each successful Reschedule performs exactly one
// registry write.
type Service struct {
	registry Updater
	rules    Rules
	logger   *logging.Logger
	now      func() time.Time
}

func NewService(reg Updater, rules Rules, logger *logging.Logger) *Service {
	if reg == nil {
		panic("appointments: registry updater is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		registry: reg,
		rules:    rules,
		logger:   logger.Named("appointments"),
		now:      time.Now,
	}
}

// Rules exposes the validation table so dialogue steps can reject bad
// dates and times before the confirmation stage.
func (s *Service) Rules() Rules { return s.rules }

// Reschedule validates the slot and moves the patient's appointment. date
// is "2006-01-02", clock is "15:04". A *ValidationError return means the
// slot was rejected before any write happened.
func (s *Service) Reschedule(ctx context.Context, patientID, date, clock, reason string) (*registry.Appointment, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, &ValidationError{Message: "No pude entender la fecha. Por favor indícala de nuevo."}
	}
	var hour, minute int
	if _, err := fmt.Sscanf(clock, "%d:%d", &hour, &minute); err != nil {
		return nil, &ValidationError{Message: "No pude entender la hora. Por favor indícala de nuevo."}
	}
	if msg := s.rules.ValidateDate(day, s.now()); msg != "" {
		return nil, &ValidationError{Message: msg}
	}
	if msg := s.rules.ValidateTime(hour, minute); msg != "" {
		return nil, &ValidationError{Message: msg}
	}
	if reason == "" {
		reason = DefaultReason
	}

	req := registry.UpdateAppointmentRequest{
		PatientID:    patientID,
		ScheduledFor: fmt.Sprintf("%sT%02d:%02d:00.000Z", date, hour, minute),
		Reason:       reason,
		StatusID:     registry.StatusProgrammed,
	}
	appt, err := s.registry.UpdateAppointment(ctx, req)
	if err != nil {
		s.logger.Error("appointment update failed", "patient_id", patientID, "error", err)
		return nil, fmt.Errorf("appointments: reschedule: %w", err)
	}
	s.logger.Info("appointment rescheduled", "patient_id", patientID, "scheduled_for", req.ScheduledFor)
	return appt, nil
}
