package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/saludtb/tb-assistant/internal/appointments"
	"github.com/saludtb/tb-assistant/internal/observability/metrics"
	"github.com/saludtb/tb-assistant/internal/registry"
	"github.com/saludtb/tb-assistant/pkg/logging"
)

// Service is the dialogue API the transport layer talks to.
type Service interface {
	ProcessMessage(ctx context.Context, userID, text string) (*Reply, error)
	History(ctx context.Context, userID string) (*Conversation, error)
	Close(ctx context.Context, userID string) (bool, error)
	ActiveCount(ctx context.Context) (int, error)
}

// Reply is the assistant's answer for one inbound message.
type Reply struct {
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	Task           TaskState `json:"task,omitempty"`
	TaskStatus     string    `json:"task_status,omitempty"`
}

// Task status values surfaced to callers.
const (
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskCancelled  = "cancelled"
)

// PatientDirectory is the read side of the patient registry.
type PatientDirectory interface {
	FindPatientByPhone(ctx context.Context, phone string) (*registry.Patient, error)
	FindPatientByCard(ctx context.Context, cardID string) (*registry.Patient, error)
	GetNextAppointment(ctx context.Context, patientID string) (*registry.Appointment, error)
}

// AppointmentScheduler commits appointment changes.
type AppointmentScheduler interface {
	Reschedule(ctx context.Context, patientID, date, clock, reason string) (*registry.Appointment, error)
}

// EngineConfig wires the engine's collaborators. Store, Directory,
// Scheduler, and LLM are required; Archive and Metrics may be nil.
type EngineConfig struct {
	Store       *Store
	Archive     *Archive
	Directory   PatientDirectory
	Scheduler   AppointmentScheduler
	LLM         LLMClient
	Metrics     *metrics.ConversationMetrics
	Logger      *logging.Logger
	Rules       appointments.Rules
	ClinicName  string
	MaxTokens   int
	Temperature float64
	LLMTimeout  time.Duration
}

// Engine orchestrates conversations: it routes each message either into
// an in-flight task, a freshly detected intent, or free-form generation,
// and persists exactly one updated conversation per turn. Concurrent
// turns for the same user are not serialized; the last save wins.
type Engine struct {
	store     *Store
	archive   *Archive
	directory PatientDirectory
	scheduler AppointmentScheduler
	llm       LLMClient
	metrics   *metrics.ConversationMetrics
	logger    *logging.Logger
	rules     appointments.Rules

	clinicName  string
	maxTokens   int
	temperature float64
	llmTimeout  time.Duration
	now         func() time.Time
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Store == nil {
		panic("conversation: store is required")
	}
	if cfg.Directory == nil {
		panic("conversation: patient directory is required")
	}
	if cfg.Scheduler == nil {
		panic("conversation: scheduler is required")
	}
	if cfg.LLM == nil {
		panic("conversation: llm client is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 80
	}
	llmTimeout := cfg.LLMTimeout
	if llmTimeout <= 0 {
		llmTimeout = 30 * time.Second
	}
	return &Engine{
		store:       cfg.Store,
		archive:     cfg.Archive,
		directory:   cfg.Directory,
		scheduler:   cfg.Scheduler,
		llm:         cfg.LLM,
		metrics:     cfg.Metrics,
		logger:      logger.Named("engine"),
		rules:       cfg.Rules,
		clinicName:  cfg.ClinicName,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		llmTimeout:  llmTimeout,
		now:         time.Now,
	}
}

// turnResult is what a routing branch produced for the current message.
type turnResult struct {
	content    string
	outcome    string
	taskStatus string
}

// ProcessMessage runs one dialogue turn for userID. The user ID doubles
// as the patient's phone number for registry lookups.
func (e *Engine) ProcessMessage(ctx context.Context, userID, text string) (*Reply, error) {
	start := e.now()

	text = CleanInbound(text)
	if text == "" {
		return nil, errors.New("conversation: empty message")
	}

	conv, err := e.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		// New session, or the previous one aged out. Either way the
		// patient starts clean.
		conv = New(userID)
		if err := e.archive.EnsureConversation(ctx, conv); err != nil {
			e.logger.Warn("archive upsert failed", "user_id", userID, "error", err)
		}
	}

	userMsg := conv.AddMessage(RoleUser, text)
	e.archiveMessage(ctx, conv.ID, userMsg)

	res := e.route(ctx, conv, text)

	assistantMsg := conv.AddMessage(RoleAssistant, res.content)
	e.archiveMessage(ctx, conv.ID, assistantMsg)

	if err := e.store.Save(ctx, conv); err != nil {
		return nil, err
	}

	e.metrics.ObserveTurn(res.outcome, e.now().Sub(start))
	e.logger.Info("turn processed",
		"user_id", userID,
		"outcome", res.outcome,
		"task", string(conv.Task))

	return &Reply{
		ConversationID: conv.ID,
		Content:        res.content,
		Task:           conv.Task,
		TaskStatus:     res.taskStatus,
	}, nil
}

func (e *Engine) route(ctx context.Context, conv *Conversation, text string) turnResult {
	if conv.TaskActive() {
		return e.continueTask(ctx, conv, text)
	}

	if intent := DetectIntent(text); intent.IsConfident() {
		e.metrics.ObserveIntent(intent.Action)
		switch intent.Action {
		case ActionReschedule:
			return e.startReschedule(ctx, conv, text)
		case ActionLookup:
			return e.handleLookup(ctx, conv)
		case ActionCancel:
			return turnResult{
				content: "Para cancelar tu cita definitivamente debes comunicarte con la clínica. Si prefieres, puedo ayudarte a moverla a otra fecha.",
				outcome: metrics.OutcomeTask,
			}
		case ActionSchedule:
			return e.handleSchedule(ctx, conv)
		case ActionVerify:
			return e.handleVerify(ctx, conv, intent.Params)
		}
	}

	return e.generate(ctx, conv, text)
}

// continueTask dispatches to the step the conversation is waiting on.
// An unknown state means a deploy changed the state set under a live
// session; recover by resetting the task instead of wedging the patient.
func (e *Engine) continueTask(ctx context.Context, conv *Conversation, text string) turnResult {
	switch conv.Task {
	case TaskAwaitingDate:
		return e.handleAwaitingDate(conv, text)
	case TaskAwaitingTime:
		return e.handleAwaitingTime(conv, text)
	case TaskAwaitingConfirmation:
		return e.handleAwaitingConfirmation(ctx, conv, text)
	default:
		e.logger.Error("unknown task state", "state", string(conv.Task), "user_id", conv.UserID)
		conv.ClearTask()
		return turnResult{
			content: "Disculpa, perdí el hilo de lo que estábamos haciendo. ¿Me repites qué necesitas?",
			outcome: metrics.OutcomeError,
		}
	}
}

// generate is the free-form path: guard, prompt, model, sanitize.
func (e *Engine) generate(ctx context.Context, conv *Conversation, text string) turnResult {
	if !InContext(text) {
		return turnResult{content: OutOfContextReply, outcome: metrics.OutcomeOutOfScope}
	}

	facts := e.lookupFacts(ctx, conv.UserID)
	prompt := BuildPrompt(e.clinicName, facts, conv.Messages, text)

	llmCtx, cancel := context.WithTimeout(ctx, e.llmTimeout)
	defer cancel()

	resp, err := e.llm.Complete(llmCtx, CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
		Stop:        []string{"<USER>", "\n\n"},
	})
	if err != nil {
		e.logger.Warn("generation failed", "user_id", conv.UserID, "error", err)
		return turnResult{content: FallbackReply(text), outcome: metrics.OutcomeFallback}
	}

	clean := CleanResponse(resp.Text)
	if !ValidateResponse(clean) {
		e.logger.Warn("generation rejected", "user_id", conv.UserID, "raw_len", len(resp.Text))
		return turnResult{content: FallbackReply(text), outcome: metrics.OutcomeFallback}
	}
	return turnResult{content: clean, outcome: metrics.OutcomeGenerated}
}

// lookupFacts pulls verified registry data for the prompt. Failures
// degrade to an unregistered prompt rather than blocking the turn.
func (e *Engine) lookupFacts(ctx context.Context, phone string) PatientFacts {
	patient, err := e.directory.FindPatientByPhone(ctx, phone)
	if err != nil {
		e.logger.Warn("registry lookup failed", "error", err)
		return PatientFacts{}
	}
	if patient == nil {
		return PatientFacts{}
	}

	facts := PatientFacts{
		Registered: true,
		Name:       patient.Name,
		LastVisit:  patient.LastVisit,
	}
	appt := patient.NextAppointment
	if appt == nil {
		appt, err = e.directory.GetNextAppointment(ctx, patient.ID)
		if err != nil {
			e.logger.Warn("appointment lookup failed", "patient_id", patient.ID, "error", err)
		}
	}
	if appt != nil {
		if day, clock, ok := splitSchedule(appt.ScheduledFor); ok {
			facts.AppointmentDate = formatSpanishDate(day)
			facts.AppointmentTime = clock
		}
		facts.AppointmentType = appt.Type
	}
	return facts
}

func (e *Engine) archiveMessage(ctx context.Context, conversationID string, msg Message) {
	if err := e.archive.AppendMessage(ctx, conversationID, msg); err != nil {
		e.logger.Warn("archive append failed", "conversation_id", conversationID, "error", err)
	}
}

// History returns the live session, or nil if none exists.
func (e *Engine) History(ctx context.Context, userID string) (*Conversation, error) {
	return e.store.Get(ctx, userID)
}

// Close marks the live session as closed, records the final status in the
// archive, and drops the session from Redis. Returns false when nothing was
// active for the user.
func (e *Engine) Close(ctx context.Context, userID string) (bool, error) {
	conv, err := e.store.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if conv == nil {
		return false, nil
	}
	conv.Close()
	if err := e.archive.EnsureConversation(ctx, conv); err != nil {
		e.logger.Warn("archive close failed", "user_id", userID, "error", err)
	}
	return e.store.Delete(ctx, userID)
}

// ActiveCount reports how many sessions currently live in Redis.
func (e *Engine) ActiveCount(ctx context.Context) (int, error) {
	ids, err := e.store.ListActiveIDs(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

var _ Service = (*Engine)(nil)

// splitSchedule breaks a registry ISO timestamp into date and clock parts.
func splitSchedule(iso string) (day, clock string, ok bool) {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return "", "", false
	}
	return t.Format("2006-01-02"), t.Format("15:04"), true
}

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// formatSpanishDate renders "2026-03-04" as "4 de marzo de 2026".
func formatSpanishDate(day string) string {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		return day
	}
	return fmt.Sprintf("%d de %s de %d", t.Day(), spanishMonths[t.Month()-1], t.Year())
}
