package domain

import (
	"fmt"
	"strings"
	"time"
)

// RefreshLogCap is the number of log entries kept per document.
const RefreshLogCap = 50

type TriggerKind string

const (
	TriggerScheduled TriggerKind = "scheduled"
	TriggerManual    TriggerKind = "manual"
)

type LogKind string

const (
	LogScheduled LogKind = "scheduled"
	LogManual    LogKind = "manual"
	LogError     LogKind = "error"
)

// LogKindFor maps a trigger onto the log kind of a successful attempt.
func LogKindFor(trigger TriggerKind) LogKind {
	if trigger == TriggerManual {
		return LogManual
	}
	return LogScheduled
}

type RefreshLogEntry struct {
	ID         int64     `json:"-"`
	DocumentID int64     `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
	Kind       LogKind   `json:"type"`
	Message    string    `json:"message"`
	Changes    []string  `json:"changes"`
}

type RefreshStatus string

const (
	RefreshSucceeded RefreshStatus = "succeeded"
	RefreshFailed    RefreshStatus = "failed"
	RefreshSkipped   RefreshStatus = "skipped"
)

type RefreshOutcome struct {
	DocumentID            int64
	Trigger               TriggerKind
	Status                RefreshStatus
	ChangedSections       []string
	Summary               string
	HasSignificantUpdates bool
	Reason                string
	StartedAt             time.Time
	FinishedAt            time.Time
}

func (o *RefreshOutcome) Succeeded() bool {
	return o.Status == RefreshSucceeded
}

// Message is the human-readable result shown to manual callers.
func (o *RefreshOutcome) Message() string {
	switch o.Status {
	case RefreshSucceeded:
	case RefreshSkipped:
		return "Refresh skipped: " + o.Reason
	default:
		return "Refresh failed: " + o.Reason
	}
	if len(o.ChangedSections) == 0 {
		return "Refresh completed: no changes"
	}
	return fmt.Sprintf("Refresh completed: updated %d section(s): %s",
		len(o.ChangedSections), strings.Join(o.ChangedSections, ", "))
}

// RefreshJob is the queued unit of work for one document.
type RefreshJob struct {
	ID         string      `json:"id"`
	DocumentID int64       `json:"document_id"`
	Trigger    TriggerKind `json:"trigger"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
	RunAfter   time.Time   `json:"run_after"`
}

// DispatchStats holds statistics about one scheduler tick.
type DispatchStats struct {
	Due      int
	Enqueued int
	Errors   int
	Duration time.Duration
}
