package conversation

import (
	"testing"
)

func TestAddMessageUpdatesTimestamps(t *testing.T) {
	c := New("user-1")
	if c.Status != StatusActive {
		t.Fatalf("status = %q", c.Status)
	}

	msg := c.AddMessage(RoleUser, "hola")
	if msg.ID == "" {
		t.Error("message ID not assigned")
	}
	if len(c.Messages) != 1 {
		t.Fatalf("messages = %d", len(c.Messages))
	}
	if c.UpdatedAt.Before(c.CreatedAt) {
		t.Error("UpdatedAt went backwards")
	}
}

func TestRecentMessages(t *testing.T) {
	c := New("user-1")
	for i := 0; i < 15; i++ {
		c.AddMessage(RoleUser, "m")
	}

	recent := c.RecentMessages(10)
	if len(recent) != 10 {
		t.Fatalf("recent = %d", len(recent))
	}
	if got := c.RecentMessages(0); len(got) != 15 {
		t.Fatalf("limit 0 should return all, got %d", len(got))
	}
	if got := c.RecentMessages(100); len(got) != 15 {
		t.Fatalf("oversized limit should return all, got %d", len(got))
	}
}

func TestTaskDataMerge(t *testing.T) {
	base := TaskData{PatientID: "7", Date: "2026-03-04"}
	merged := base.Merge(TaskData{Time: "09:30"})

	if merged.PatientID != "7" || merged.Date != "2026-03-04" || merged.Time != "09:30" {
		t.Fatalf("merged = %+v", merged)
	}

	// New values win, zero values do not clobber.
	merged = merged.Merge(TaskData{Date: "2026-03-05"})
	if merged.Date != "2026-03-05" || merged.Time != "09:30" {
		t.Fatalf("merged = %+v", merged)
	}
}

func TestClearTaskResetsBag(t *testing.T) {
	c := New("user-1")
	c.SetTask(TaskAwaitingTime, TaskData{PatientID: "7", Date: "2026-03-04"})
	if !c.TaskActive() {
		t.Fatal("task should be active")
	}

	c.ClearTask()
	if c.TaskActive() {
		t.Fatal("task should be idle")
	}
	if !c.TaskData.IsEmpty() {
		t.Fatalf("task data not cleared: %+v", c.TaskData)
	}
}
