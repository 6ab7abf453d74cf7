package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/saludtb/tb-assistant/internal/appointments"
	"github.com/saludtb/tb-assistant/internal/observability/metrics"
)

const (
	replyRegistryDown = "En este momento no puedo acceder al registro de pacientes. Por favor intenta de nuevo en unos minutos."
	replyNotFound     = "No encuentro un registro con este número de teléfono. Por favor acércate a la clínica para actualizar tus datos."
	replyNoUpcoming   = "No tienes citas programadas que pueda reprogramar. El personal de la clínica te asignará una en tu próximo control."
	replyTaskLost     = "Disculpa, algo salió mal con el cambio de tu cita. Empecemos de nuevo: dime qué necesitas."
	replyKeptAsIs     = "Entendido, tu cita se mantiene sin cambios. ¿Puedo ayudarte con algo más?"
	replyWriteFailed  = "No pude actualizar tu cita en este momento. Tu cita anterior sigue vigente, por favor intenta más tarde."
)

// Checked before the confirmation words so "no, mejor cancelar" backs out
// instead of committing.
var cancellationWords = []string{"cancelar", "espera", "mejor no", "no gracias", "no"}

var confirmationWords = []string{"si", "yes", "ok", "confirmo", "confirmar", "dale", "perfecto", "esta bien", "correcto"}

// startReschedule verifies the patient and opens the reschedule task,
// skipping ahead past any step whose answer the first message already
// contained.
func (e *Engine) startReschedule(ctx context.Context, conv *Conversation, text string) turnResult {
	patient, err := e.directory.FindPatientByPhone(ctx, conv.UserID)
	if err != nil {
		e.logger.Error("patient lookup failed", "user_id", conv.UserID, "error", err)
		return turnResult{content: replyRegistryDown, outcome: metrics.OutcomeError}
	}
	if patient == nil {
		return turnResult{content: replyNotFound, outcome: metrics.OutcomeTask}
	}

	appt := patient.NextAppointment
	if appt == nil {
		appt, err = e.directory.GetNextAppointment(ctx, patient.ID)
		if err != nil {
			e.logger.Error("appointment lookup failed", "patient_id", patient.ID, "error", err)
			return turnResult{content: replyRegistryDown, outcome: metrics.OutcomeError}
		}
	}
	if appt == nil {
		return turnResult{content: replyNoUpcoming, outcome: metrics.OutcomeTask}
	}

	conv.SetTask(TaskAwaitingDate, TaskData{
		PatientID:     patient.ID,
		PatientName:   patient.Name,
		AppointmentID: appt.ID,
	})

	data := ExtractAppointmentData(text, e.now())
	if reject := e.absorbDate(conv, data); reject != "" {
		return turnResult{content: reject, outcome: metrics.OutcomeTask, taskStatus: TaskInProgress}
	}
	if reject := e.absorbTime(conv, data); reject != "" {
		if conv.TaskData.Date != "" {
			conv.SetTask(TaskAwaitingTime, TaskData{})
		}
		return turnResult{content: reject, outcome: metrics.OutcomeTask, taskStatus: TaskInProgress}
	}
	return e.nextStep(conv)
}

func (e *Engine) handleAwaitingDate(conv *Conversation, text string) turnResult {
	data := ExtractAppointmentData(text, e.now())
	if data.Date == "" {
		return turnResult{
			content:    "No entendí la fecha. Puedes decir por ejemplo \"mañana\", \"el viernes\" o \"15/03/2026\".",
			outcome:    metrics.OutcomeTask,
			taskStatus: TaskInProgress,
		}
	}
	if reject := e.absorbDate(conv, data); reject != "" {
		return turnResult{content: reject, outcome: metrics.OutcomeTask, taskStatus: TaskInProgress}
	}
	// The date is banked even if a bundled time gets rejected, so the
	// patient only has to repeat the time.
	if reject := e.absorbTime(conv, data); reject != "" {
		conv.SetTask(TaskAwaitingTime, TaskData{})
		return turnResult{content: reject, outcome: metrics.OutcomeTask, taskStatus: TaskInProgress}
	}
	return e.nextStep(conv)
}

func (e *Engine) handleAwaitingTime(conv *Conversation, text string) turnResult {
	data := ExtractAppointmentData(text, e.now())
	if data.Time == "" {
		return turnResult{
			content:    fmt.Sprintf("No entendí la hora. Atendemos de %02d:00 a %02d:00, por ejemplo \"9:30\" o \"por la tarde\".", e.rules.OpenHour, e.rules.CloseHour),
			outcome:    metrics.OutcomeTask,
			taskStatus: TaskInProgress,
		}
	}
	if reject := e.absorbDate(conv, data); reject != "" {
		return turnResult{content: reject, outcome: metrics.OutcomeTask, taskStatus: TaskInProgress}
	}
	if reject := e.absorbTime(conv, data); reject != "" {
		return turnResult{content: reject, outcome: metrics.OutcomeTask, taskStatus: TaskInProgress}
	}
	return e.nextStep(conv)
}

func (e *Engine) handleAwaitingConfirmation(ctx context.Context, conv *Conversation, text string) turnResult {
	norm := normalize(text)

	for _, w := range cancellationWords {
		if matchVocab(norm, w) {
			conv.ClearTask()
			e.metrics.ObserveReschedule("cancelled")
			return turnResult{content: replyKeptAsIs, outcome: metrics.OutcomeTask, taskStatus: TaskCancelled}
		}
	}

	confirmed := false
	for _, w := range confirmationWords {
		if matchVocab(norm, w) {
			confirmed = true
			break
		}
	}
	if !confirmed {
		d := conv.TaskData
		return turnResult{
			content:    fmt.Sprintf("¿Confirmo el cambio de tu cita para el %s a las %s? Responde sí o no.", formatSpanishDate(d.Date), d.Time),
			outcome:    metrics.OutcomeTask,
			taskStatus: TaskInProgress,
		}
	}

	d := conv.TaskData
	if d.PatientID == "" || d.Date == "" || d.Time == "" {
		e.logger.Error("confirmation reached with incomplete task data",
			"user_id", conv.UserID, "task_data", fmt.Sprintf("%+v", d))
		conv.ClearTask()
		return turnResult{content: replyTaskLost, outcome: metrics.OutcomeError}
	}

	appt, err := e.scheduler.Reschedule(ctx, d.PatientID, d.Date, d.Time, d.Reason)
	if err != nil {
		conv.ClearTask()
		e.metrics.ObserveReschedule("failed")
		var verr *appointments.ValidationError
		if errors.As(err, &verr) {
			return turnResult{
				content: verr.Message + " Dime otra fecha cuando quieras para intentarlo de nuevo.",
				outcome: metrics.OutcomeTask,
			}
		}
		e.logger.Error("reschedule write failed", "user_id", conv.UserID, "error", err)
		return turnResult{content: replyWriteFailed, outcome: metrics.OutcomeError}
	}

	conv.ClearTask()
	e.metrics.ObserveReschedule("completed")
	content := fmt.Sprintf("¡Listo! Tu cita quedó reprogramada para el %s a las %s. Te esperamos en %s.",
		formatSpanishDate(d.Date), d.Time, e.clinicName)
	if appt == nil {
		e.logger.Warn("reschedule returned no appointment", "user_id", conv.UserID)
	}
	return turnResult{content: content, outcome: metrics.OutcomeTask, taskStatus: TaskCompleted}
}

// absorbDate validates and merges a mentioned date (plus any stated visit
// reason). A non-empty return is the rejection to send; nothing was merged
// for it and the state stays put. An absent date is not a rejection.
func (e *Engine) absorbDate(conv *Conversation, data AppointmentData) string {
	if data.Reason != "" {
		conv.SetTask(conv.Task, TaskData{Reason: data.Reason})
	}
	if data.Date == "" {
		return ""
	}
	day, err := time.Parse("2006-01-02", data.Date)
	if err != nil {
		return "No entendí la fecha. ¿Me la repites?"
	}
	if msg := e.rules.ValidateDate(day, e.now()); msg != "" {
		return msg
	}
	conv.SetTask(conv.Task, TaskData{Date: data.Date})
	return ""
}

// absorbTime validates and merges a mentioned clock time. Same contract
// as absorbDate.
func (e *Engine) absorbTime(conv *Conversation, data AppointmentData) string {
	if data.Time == "" {
		return ""
	}
	var hour, minute int
	if _, err := fmt.Sscanf(data.Time, "%d:%d", &hour, &minute); err != nil {
		return "No entendí la hora. ¿Me la repites?"
	}
	if msg := e.rules.ValidateTime(hour, minute); msg != "" {
		return msg
	}
	conv.SetTask(conv.Task, TaskData{Time: data.Time})
	return ""
}

// nextStep advances the task to the first step whose field is still
// missing, or to confirmation when everything is collected.
func (e *Engine) nextStep(conv *Conversation) turnResult {
	d := conv.TaskData
	switch {
	case d.Date == "":
		conv.SetTask(TaskAwaitingDate, TaskData{})
		return turnResult{
			content:    "¿Para qué fecha quieres mover tu cita? Puedes decir \"mañana\", un día de la semana o una fecha.",
			outcome:    metrics.OutcomeTask,
			taskStatus: TaskInProgress,
		}
	case d.Time == "":
		conv.SetTask(TaskAwaitingTime, TaskData{})
		return turnResult{
			content:    fmt.Sprintf("¿A qué hora te conviene? Atendemos de %02d:00 a %02d:00.", e.rules.OpenHour, e.rules.CloseHour),
			outcome:    metrics.OutcomeTask,
			taskStatus: TaskInProgress,
		}
	default:
		conv.SetTask(TaskAwaitingConfirmation, TaskData{})
		return turnResult{
			content:    fmt.Sprintf("Quieres mover tu cita para el %s a las %s, ¿es correcto? Responde sí para confirmar.", formatSpanishDate(d.Date), d.Time),
			outcome:    metrics.OutcomeTask,
			taskStatus: TaskInProgress,
		}
	}
}

func (e *Engine) handleLookup(ctx context.Context, conv *Conversation) turnResult {
	patient, err := e.directory.FindPatientByPhone(ctx, conv.UserID)
	if err != nil {
		e.logger.Error("patient lookup failed", "user_id", conv.UserID, "error", err)
		return turnResult{content: replyRegistryDown, outcome: metrics.OutcomeError}
	}
	if patient == nil {
		return turnResult{content: replyNotFound, outcome: metrics.OutcomeTask}
	}

	appt := patient.NextAppointment
	if appt == nil {
		appt, err = e.directory.GetNextAppointment(ctx, patient.ID)
		if err != nil {
			e.logger.Error("appointment lookup failed", "patient_id", patient.ID, "error", err)
			return turnResult{content: replyRegistryDown, outcome: metrics.OutcomeError}
		}
	}
	if appt == nil {
		return turnResult{
			content: "No tienes citas programadas por el momento. El personal de la clínica te asignará una en tu próximo control.",
			outcome: metrics.OutcomeTask,
		}
	}

	day, clock, ok := splitSchedule(appt.ScheduledFor)
	if !ok {
		e.logger.Error("unparseable appointment timestamp",
			"appointment_id", appt.ID, "scheduled_for", appt.ScheduledFor)
		return turnResult{content: replyRegistryDown, outcome: metrics.OutcomeError}
	}
	content := fmt.Sprintf("Tu próxima cita es el %s a las %s", formatSpanishDate(day), clock)
	if appt.Type != "" {
		content += " (" + appt.Type + ")"
	}
	content += ". Si necesitas moverla, dime \"reprogramar\"."
	return turnResult{content: content, outcome: metrics.OutcomeTask}
}

func (e *Engine) handleSchedule(ctx context.Context, conv *Conversation) turnResult {
	patient, err := e.directory.FindPatientByPhone(ctx, conv.UserID)
	if err == nil && patient != nil && patient.NextAppointment != nil {
		return turnResult{
			content: "Ya tienes una cita programada. Si quieres puedo ayudarte a moverla de fecha, dime \"reprogramar\".",
			outcome: metrics.OutcomeTask,
		}
	}
	return turnResult{
		content: "Las citas nuevas las asigna el personal de la clínica en tu control. Si ya tienes una cita puedo ayudarte a consultarla o moverla.",
		outcome: metrics.OutcomeTask,
	}
}

func (e *Engine) handleVerify(ctx context.Context, conv *Conversation, params map[string]string) turnResult {
	// A full carnet number is looked up directly; last-4 digits are
	// checked against the record tied to the caller's phone.
	if carnet := params["carnet"]; carnet != "" {
		patient, err := e.directory.FindPatientByCard(ctx, carnet)
		if err != nil {
			e.logger.Error("patient lookup failed", "user_id", conv.UserID, "error", err)
			return turnResult{content: replyRegistryDown, outcome: metrics.OutcomeError}
		}
		if patient == nil {
			return turnResult{
				content: "No encuentro un registro con ese carnet. Verifica el número o acércate a la clínica.",
				outcome: metrics.OutcomeTask,
			}
		}
		return turnResult{
			content: fmt.Sprintf("Gracias %s, verifiqué tu identidad. ¿En qué puedo ayudarte con tus citas?", patient.Name),
			outcome: metrics.OutcomeTask,
		}
	}

	patient, err := e.directory.FindPatientByPhone(ctx, conv.UserID)
	if err != nil {
		e.logger.Error("patient lookup failed", "user_id", conv.UserID, "error", err)
		return turnResult{content: replyRegistryDown, outcome: metrics.OutcomeError}
	}
	if patient == nil {
		return turnResult{content: replyNotFound, outcome: metrics.OutcomeTask}
	}
	lastFour := params["last_four_digits"]
	if lastFour == "" || !strings.HasSuffix(patient.CardID, lastFour) {
		return turnResult{
			content: "Ese número no coincide con el documento que tenemos registrado. Verifica los últimos 4 dígitos de tu carnet.",
			outcome: metrics.OutcomeTask,
		}
	}
	return turnResult{
		content: fmt.Sprintf("Gracias %s, verifiqué tu identidad. ¿En qué puedo ayudarte con tus citas?", patient.Name),
		outcome: metrics.OutcomeTask,
	}
}

// matchVocab matches short words on boundaries and longer phrases anywhere.
func matchVocab(norm, w string) bool {
	if strings.Contains(w, " ") || len(w) > 4 {
		return strings.Contains(norm, w)
	}
	return containsWord(norm, w)
}
