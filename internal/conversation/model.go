package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status of a conversation as a whole.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// TaskState tracks where a multi-turn task stands. The empty value means
// no task is in progress and messages flow to free-form generation.
type TaskState string

const (
	TaskIdle                 TaskState = ""
	TaskAwaitingDate         TaskState = "reschedule_awaiting_date"
	TaskAwaitingTime         TaskState = "reschedule_awaiting_time"
	TaskAwaitingConfirmation TaskState = "reschedule_awaiting_confirmation"
)

// Message is a single turn in the transcript.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskData is the typed bag of fields collected across a task's turns.
type TaskData struct {
	PatientID     string `json:"patient_id,omitempty"`
	PatientName   string `json:"patient_name,omitempty"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Date          string `json:"date,omitempty"` // 2006-01-02
	Time          string `json:"time,omitempty"` // 15:04
	Reason        string `json:"reason,omitempty"`
}

// Merge folds non-zero fields of other into a copy of d. Fields already
// collected are only replaced when other carries a value for them.
func (d TaskData) Merge(other TaskData) TaskData {
	if other.PatientID != "" {
		d.PatientID = other.PatientID
	}
	if other.PatientName != "" {
		d.PatientName = other.PatientName
	}
	if other.AppointmentID != "" {
		d.AppointmentID = other.AppointmentID
	}
	if other.Date != "" {
		d.Date = other.Date
	}
	if other.Time != "" {
		d.Time = other.Time
	}
	if other.Reason != "" {
		d.Reason = other.Reason
	}
	return d
}

func (d TaskData) IsEmpty() bool {
	return d == TaskData{}
}

// Conversation is one patient's dialogue session.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Messages  []Message `json:"messages"`
	Status    Status    `json:"status"`
	Task      TaskState `json:"task,omitempty"`
	TaskData  TaskData  `json:"task_data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an active conversation for userID.
func New(userID string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddMessage appends a turn and returns it.
func (c *Conversation) AddMessage(role Role, content string) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = msg.Timestamp
	return msg
}

// RecentMessages returns up to limit of the newest messages, oldest first.
func (c *Conversation) RecentMessages(limit int) []Message {
	if limit <= 0 || len(c.Messages) <= limit {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-limit:]
}

// SetTask moves the conversation to state and merges data into the bag.
func (c *Conversation) SetTask(state TaskState, data TaskData) {
	c.Task = state
	c.TaskData = c.TaskData.Merge(data)
	c.UpdatedAt = time.Now().UTC()
}

// ClearTask returns the conversation to idle and drops collected fields.
func (c *Conversation) ClearTask() {
	c.Task = TaskIdle
	c.TaskData = TaskData{}
	c.UpdatedAt = time.Now().UTC()
}

// TaskActive reports whether a multi-turn task is in progress.
func (c *Conversation) TaskActive() bool {
	return c.Task != TaskIdle
}

func (c *Conversation) Close() {
	c.Status = StatusClosed
	c.UpdatedAt = time.Now().UTC()
}
