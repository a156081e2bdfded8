package notify

import "log/slog"

// Event types emitted by sync passes.
const (
	EventIssueDone     = "issue.done"     // a pass flipped a mirrored issue to done
	EventSyncProgress  = "sync.progress"  // one project of a class-wide sync finished
	EventSyncCompleted = "sync.completed" // a sync pass finished cleanly
	EventSyncDegraded  = "sync.degraded"  // upstream rejected or unreachable; mirror left stale
)

// Event represents a board change or sync notification.
type Event struct {
	Type        string
	ProjectID   string
	ClassID     string
	IssueNumber int
	Title       string
	Message     string

	// MCPSessionID targets a specific MCP client session.
	// Empty means broadcast to all.
	MCPSessionID string
}

// Notifier sends board notifications.
type Notifier interface {
	Notify(event Event)
}

// Hub dispatches events to multiple notifiers.
type Hub struct {
	notifiers []Notifier
}

// NewHub creates a Hub with the given notifiers.
func NewHub(notifiers ...Notifier) *Hub {
	return &Hub{notifiers: notifiers}
}

// Add registers another notifier. Not safe for use once events flow.
func (h *Hub) Add(n Notifier) {
	h.notifiers = append(h.notifiers, n)
}

// Notify sends an event to all registered notifiers.
func (h *Hub) Notify(event Event) {
	for _, n := range h.notifiers {
		go n.Notify(event)
	}
}

// LogNotifier writes every event to the structured log.
type LogNotifier struct{}

// Notify logs the event.
func (LogNotifier) Notify(event Event) {
	attrs := []any{"type", event.Type, "project_id", event.ProjectID}
	if event.IssueNumber != 0 {
		attrs = append(attrs, "issue_number", event.IssueNumber)
	}
	if event.Message != "" {
		attrs = append(attrs, "message", event.Message)
	}
	if event.Type == EventSyncDegraded {
		slog.Warn("board event", attrs...)
		return
	}
	slog.Info("board event", attrs...)
}
