package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/saludtb/tb-assistant/internal/appointments"
	"github.com/saludtb/tb-assistant/internal/registry"
	"github.com/saludtb/tb-assistant/pkg/logging"
)

type stubDirectory struct {
	patient *registry.Patient
	err     error
}

func (d *stubDirectory) FindPatientByPhone(context.Context, string) (*registry.Patient, error) {
	return d.patient, d.err
}

func (d *stubDirectory) FindPatientByCard(_ context.Context, cardID string) (*registry.Patient, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.patient != nil && d.patient.CardID == cardID {
		return d.patient, nil
	}
	return nil, nil
}

func (d *stubDirectory) GetNextAppointment(context.Context, string) (*registry.Appointment, error) {
	if d.patient == nil {
		return nil, nil
	}
	return d.patient.NextAppointment, nil
}

type rescheduleCall struct {
	patientID, date, clock, reason string
}

type stubScheduler struct {
	calls []rescheduleCall
	appt  *registry.Appointment
	err   error
}

func (s *stubScheduler) Reschedule(_ context.Context, patientID, date, clock, reason string) (*registry.Appointment, error) {
	s.calls = append(s.calls, rescheduleCall{patientID, date, clock, reason})
	if s.err != nil {
		return nil, s.err
	}
	return s.appt, nil
}

type stubLLM struct {
	text  string
	err   error
	calls int
}

func (l *stubLLM) Complete(context.Context, CompletionRequest) (*CompletionResponse, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return &CompletionResponse{Text: l.text}, nil
}

type engineFixture struct {
	engine    *Engine
	mr        *miniredis.Miniredis
	directory *stubDirectory
	scheduler *stubScheduler
	llm       *stubLLM
}

func registeredPatient() *registry.Patient {
	return &registry.Patient{
		ID:     "p1",
		Name:   "Juan Pérez",
		Phone:  "591700",
		CardID: "12345678",
		NextAppointment: &registry.Appointment{
			ID:           "a1",
			PatientID:    "p1",
			ScheduledFor: "2026-03-10T09:00:00.000Z",
			Type:         "Control",
		},
	}
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := logging.New("error")
	store := NewStore(client, time.Hour, logger)
	dir := &stubDirectory{patient: registeredPatient()}
	sched := &stubScheduler{appt: &registry.Appointment{ID: "a1"}}
	llm := &stubLLM{text: "Tu próxima cita es el 10 de marzo."}

	e := NewEngine(EngineConfig{
		Store:      store,
		Directory:  dir,
		Scheduler:  sched,
		LLM:        llm,
		Logger:     logger,
		Rules:      appointments.DefaultRules(),
		ClinicName: "CAÑADA DEL CARMEN",
		MaxTokens:  80,
	})
	// Wednesday 2026-03-04 10:00.
	e.now = func() time.Time { return time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) }
	return &engineFixture{engine: e, mr: mr, directory: dir, scheduler: sched, llm: llm}
}

func (f *engineFixture) send(t *testing.T, text string) *Reply {
	t.Helper()
	reply, err := f.engine.ProcessMessage(context.Background(), "591700", text)
	if err != nil {
		t.Fatalf("ProcessMessage(%q): %v", text, err)
	}
	return reply
}

func TestRescheduleHappyPath(t *testing.T) {
	f := newEngineFixture(t)

	r := f.send(t, "quiero reprogramar mi cita")
	if r.Task != TaskAwaitingDate {
		t.Fatalf("task = %q after open", r.Task)
	}

	r = f.send(t, "mañana")
	if r.Task != TaskAwaitingTime {
		t.Fatalf("task = %q after date", r.Task)
	}

	r = f.send(t, "a las 9:30")
	if r.Task != TaskAwaitingConfirmation {
		t.Fatalf("task = %q after time", r.Task)
	}
	if !strings.Contains(r.Content, "5 de marzo de 2026") || !strings.Contains(r.Content, "09:30") {
		t.Fatalf("confirmation summary = %q", r.Content)
	}

	r = f.send(t, "sí")
	if r.TaskStatus != TaskCompleted {
		t.Fatalf("status = %q, content = %q", r.TaskStatus, r.Content)
	}
	if r.Task != TaskIdle {
		t.Fatalf("task not cleared: %q", r.Task)
	}

	if len(f.scheduler.calls) != 1 {
		t.Fatalf("scheduler calls = %d", len(f.scheduler.calls))
	}
	call := f.scheduler.calls[0]
	if call.patientID != "p1" || call.date != "2026-03-05" || call.clock != "09:30" {
		t.Fatalf("call = %+v", call)
	}
}

func TestRescheduleSkipsCollectedSteps(t *testing.T) {
	f := newEngineFixture(t)

	r := f.send(t, "quiero cambiar mi cita para el viernes a las 8:00")
	if r.Task != TaskAwaitingConfirmation {
		t.Fatalf("task = %q, content = %q", r.Task, r.Content)
	}
	if !strings.Contains(r.Content, "6 de marzo de 2026") {
		t.Fatalf("summary = %q", r.Content)
	}
}

func TestRescheduleCancelAtConfirmation(t *testing.T) {
	f := newEngineFixture(t)

	f.send(t, "reprogramar mi cita para mañana a las 9:00")
	r := f.send(t, "no, mejor no")

	if r.TaskStatus != TaskCancelled {
		t.Fatalf("status = %q", r.TaskStatus)
	}
	if r.Task != TaskIdle {
		t.Fatalf("task = %q", r.Task)
	}
	if !strings.Contains(r.Content, "se mantiene sin cambios") {
		t.Fatalf("content = %q", r.Content)
	}
	if len(f.scheduler.calls) != 0 {
		t.Fatalf("scheduler written on cancel: %d calls", len(f.scheduler.calls))
	}
}

func TestRescheduleRejectsClosedDay(t *testing.T) {
	f := newEngineFixture(t)

	f.send(t, "quiero reprogramar mi cita")
	r := f.send(t, "el domingo")

	if r.Task != TaskAwaitingDate {
		t.Fatalf("task should stay at date, got %q", r.Task)
	}
	if !strings.Contains(r.Content, "domingos") {
		t.Fatalf("content = %q", r.Content)
	}

	// The flow recovers with a valid day.
	r = f.send(t, "el lunes entonces")
	if r.Task != TaskAwaitingTime {
		t.Fatalf("task = %q after retry", r.Task)
	}
}

func TestRescheduleRejectsOffHours(t *testing.T) {
	f := newEngineFixture(t)

	f.send(t, "quiero reprogramar mi cita para mañana")
	r := f.send(t, "a las 22:00")

	if r.Task != TaskAwaitingTime {
		t.Fatalf("task should stay at time, got %q", r.Task)
	}
	if !strings.Contains(r.Content, "07:00 a 19:00") {
		t.Fatalf("content = %q", r.Content)
	}
}

func TestRescheduleBanksDateWhenTimeRejected(t *testing.T) {
	f := newEngineFixture(t)

	f.send(t, "quiero cambiar mi cita")
	r := f.send(t, "el viernes a las 10:15")

	// The valid date is kept and only the off-grid time is rejected, so
	// the patient just repeats the time.
	if r.Task != TaskAwaitingTime {
		t.Fatalf("task = %q, content = %q", r.Task, r.Content)
	}
	if !strings.Contains(r.Content, "30 minutos") {
		t.Fatalf("content = %q", r.Content)
	}

	r = f.send(t, "a las 10:30")
	if r.Task != TaskAwaitingConfirmation {
		t.Fatalf("task = %q, content = %q", r.Task, r.Content)
	}
	if !strings.Contains(r.Content, "6 de marzo de 2026") || !strings.Contains(r.Content, "10:30") {
		t.Fatalf("summary = %q", r.Content)
	}
	if len(f.scheduler.calls) != 0 {
		t.Fatal("no write may happen before confirmation")
	}
}

func TestRescheduleAmbiguousConfirmationReprompts(t *testing.T) {
	f := newEngineFixture(t)

	f.send(t, "reprogramar para mañana a las 9:00")
	r := f.send(t, "mmm a ver")

	if r.Task != TaskAwaitingConfirmation {
		t.Fatalf("task = %q", r.Task)
	}
	if len(f.scheduler.calls) != 0 {
		t.Fatal("scheduler called on ambiguous answer")
	}
}

func TestRescheduleWriteFailure(t *testing.T) {
	f := newEngineFixture(t)
	f.scheduler.err = errors.New("backend down")

	f.send(t, "reprogramar para mañana a las 9:00")
	r := f.send(t, "sí")

	if r.Task != TaskIdle {
		t.Fatalf("task not cleared after failure: %q", r.Task)
	}
	if !strings.Contains(r.Content, "sigue vigente") {
		t.Fatalf("content = %q", r.Content)
	}
}

func TestRescheduleValidationFailureAtCommit(t *testing.T) {
	f := newEngineFixture(t)
	f.scheduler.err = &appointments.ValidationError{Message: "El horario de atención es de 07:00 a 19:00. Por favor elige otra hora."}

	f.send(t, "reprogramar para mañana a las 9:00")
	r := f.send(t, "sí")

	if r.Task != TaskIdle {
		t.Fatalf("task = %q", r.Task)
	}
	if !strings.Contains(r.Content, "horario de atención") {
		t.Fatalf("content = %q", r.Content)
	}
}

func TestRescheduleUnregisteredPatient(t *testing.T) {
	f := newEngineFixture(t)
	f.directory.patient = nil

	r := f.send(t, "quiero reprogramar mi cita")
	if r.Task != TaskIdle {
		t.Fatalf("task opened without a patient: %q", r.Task)
	}
	if !strings.Contains(r.Content, "No encuentro un registro") {
		t.Fatalf("content = %q", r.Content)
	}
}

func TestRescheduleRegistryDown(t *testing.T) {
	f := newEngineFixture(t)
	f.directory.patient = nil
	f.directory.err = errors.New("connection refused")

	r := f.send(t, "quiero reprogramar mi cita")
	if !strings.Contains(r.Content, "no puedo acceder al registro") {
		t.Fatalf("content = %q", r.Content)
	}
	if r.Task != TaskIdle {
		t.Fatalf("task = %q", r.Task)
	}
}

func TestLookupAppointment(t *testing.T) {
	f := newEngineFixture(t)

	r := f.send(t, "cuándo es mi próxima cita?")
	if !strings.Contains(r.Content, "10 de marzo de 2026") || !strings.Contains(r.Content, "09:00") {
		t.Fatalf("content = %q", r.Content)
	}
}

func TestOutOfContextShortCircuitsGeneration(t *testing.T) {
	f := newEngineFixture(t)

	r := f.send(t, "cuánto mide la hipotenusa de un triángulo de lados 3 y 4")
	if r.Content != OutOfContextReply {
		t.Fatalf("content = %q", r.Content)
	}
	if f.llm.calls != 0 {
		t.Fatalf("llm called %d times", f.llm.calls)
	}
}

func TestGenerationHappyPath(t *testing.T) {
	f := newEngineFixture(t)
	f.llm.text = "<ASSISTANT>: Claro, tu control es mensual.\n<USER>: gracias"

	r := f.send(t, "cada cuánto es el control de tuberculosis")
	if r.Content != "Claro, tu control es mensual." {
		t.Fatalf("content = %q", r.Content)
	}
	if f.llm.calls != 1 {
		t.Fatalf("llm calls = %d", f.llm.calls)
	}
}

func TestGarbledGenerationFallsBack(t *testing.T) {
	f := newEngineFixture(t)
	f.llm.text = "tu control de tuberacion es canadi"

	r := f.send(t, "tengo una consulta sobre mi tratamiento")
	if strings.Contains(r.Content, "tuberacion") {
		t.Fatalf("garbled output leaked: %q", r.Content)
	}
	if r.Content == "" {
		t.Fatal("no fallback produced")
	}
}

func TestLLMErrorFallsBack(t *testing.T) {
	f := newEngineFixture(t)
	f.llm.err = errors.New("model timeout")

	r := f.send(t, "hola doctor")
	if r.Content == "" {
		t.Fatal("no fallback produced")
	}
	if !strings.Contains(r.Content, "asistente") && !strings.Contains(r.Content, "cita") {
		t.Fatalf("content = %q", r.Content)
	}
}

func TestExpiredSessionStartsFresh(t *testing.T) {
	f := newEngineFixture(t)

	f.send(t, "reprogramar para mañana a las 9:00")
	f.mr.FastForward(2 * time.Hour)

	// The confirmation answer lands on a brand new session, so it is
	// ordinary conversation instead of a task step.
	r := f.send(t, "hola de nuevo")
	if r.Task != TaskIdle {
		t.Fatalf("task survived expiry: %q", r.Task)
	}
	if len(f.scheduler.calls) != 0 {
		t.Fatal("scheduler called after session expiry")
	}

	conv, err := f.engine.History(context.Background(), "591700")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("fresh session should hold one turn, got %d messages", len(conv.Messages))
	}
}

func TestUnknownTaskStateRecovers(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	conv := New("591700")
	conv.Task = TaskState("renamed_in_old_deploy")
	if err := f.engine.store.Save(ctx, conv); err != nil {
		t.Fatalf("save: %v", err)
	}

	r := f.send(t, "hola")
	if r.Task != TaskIdle {
		t.Fatalf("task = %q", r.Task)
	}
	if !strings.Contains(r.Content, "perdí el hilo") {
		t.Fatalf("content = %q", r.Content)
	}
}

func TestVerifyByFullCarnet(t *testing.T) {
	f := newEngineFixture(t)

	r := f.send(t, "mi carnet es 12345678")
	if !strings.Contains(r.Content, "Juan Pérez") || !strings.Contains(r.Content, "verifiqué") {
		t.Fatalf("content = %q", r.Content)
	}
}

func TestVerifyByUnknownCarnet(t *testing.T) {
	f := newEngineFixture(t)

	r := f.send(t, "mi carnet es 99999999")
	if !strings.Contains(r.Content, "No encuentro un registro") {
		t.Fatalf("content = %q", r.Content)
	}
}

func TestVerifyByLastFourDigits(t *testing.T) {
	f := newEngineFixture(t)

	r := f.send(t, "termina en 5678")
	if !strings.Contains(r.Content, "verifiqué") {
		t.Fatalf("content = %q", r.Content)
	}

	r = f.send(t, "termina en 0000")
	if !strings.Contains(r.Content, "no coincide") {
		t.Fatalf("content = %q", r.Content)
	}
}

func TestConversationAccumulatesTurns(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.send(t, "hola")
	f.send(t, "gracias")

	conv, err := f.engine.History(ctx, "591700")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(conv.Messages) != 4 {
		t.Fatalf("messages = %d", len(conv.Messages))
	}

	n, err := f.engine.ActiveCount(ctx)
	if err != nil || n != 1 {
		t.Fatalf("active = %d, %v", n, err)
	}
}

func TestCloseEndsSession(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.send(t, "hola")

	closed, err := f.engine.Close(ctx, "591700")
	if err != nil || !closed {
		t.Fatalf("close = %v, %v", closed, err)
	}
	conv, err := f.engine.History(ctx, "591700")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if conv != nil {
		t.Fatalf("session still live after close")
	}
	n, err := f.engine.ActiveCount(ctx)
	if err != nil || n != 0 {
		t.Fatalf("active = %d, %v", n, err)
	}

	closed, err = f.engine.Close(ctx, "591700")
	if err != nil || closed {
		t.Fatalf("second close = %v, %v", closed, err)
	}
}
