package notify

import (
	"log/slog"
	"sync"
	"time"
)

// MCPSender abstracts the mcp-go server notification methods.
// Defined consumer-side per Go convention.
type MCPSender interface {
	SendNotificationToSpecificClient(sessionID string, method string, params map[string]any) error
	SendNotificationToAllClients(method string, params map[string]any)
}

// MCPNotifier pushes board updates to MCP clients.
type MCPNotifier struct {
	sender   MCPSender
	debounce time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time // classID → last progress notification time
}

// NewMCPNotifier creates an MCPNotifier with the given debounce interval
// for class-wide sync progress. Other events are always sent immediately.
func NewMCPNotifier(sender MCPSender, debounce time.Duration) *MCPNotifier {
	if debounce <= 0 {
		debounce = 3 * time.Second
	}
	return &MCPNotifier{
		sender:   sender,
		debounce: debounce,
		lastSent: make(map[string]time.Time),
	}
}

// Notify sends an MCP notification for the given event.
func (n *MCPNotifier) Notify(event Event) {
	switch event.Type {
	case EventSyncProgress:
		n.sendProgress(event)
	case EventIssueDone:
		n.sendMessage(event, "info")
	case EventSyncCompleted:
		n.clearDebounce(event.ClassID)
		n.sendMessage(event, "info")
	case EventSyncDegraded:
		n.clearDebounce(event.ClassID)
		n.sendMessage(event, "warning")
	default:
		slog.Debug("mcp notifier: unknown event type", "type", event.Type)
	}
}

// sendProgress sends a notifications/progress with debounce.
func (n *MCPNotifier) sendProgress(event Event) {
	key := event.ClassID
	if key == "" {
		key = event.ProjectID
	}

	n.mu.Lock()
	last, ok := n.lastSent[key]
	if ok && time.Since(last) < n.debounce {
		n.mu.Unlock()
		return
	}
	n.lastSent[key] = time.Now()
	n.mu.Unlock()

	params := map[string]any{
		"progressToken": key,
		"progress":      -1, // indeterminate
		"total":         1,
		"message":       event.Message,
	}

	n.send(event.MCPSessionID, "notifications/progress", params)
}

// sendMessage sends a notifications/message.
func (n *MCPNotifier) sendMessage(event Event, level string) {
	data := map[string]any{
		"type":       event.Type,
		"project_id": event.ProjectID,
		"message":    event.Message,
	}
	if event.IssueNumber != 0 {
		data["issue_number"] = event.IssueNumber
		data["title"] = event.Title
	}
	params := map[string]any{
		"level":  level,
		"logger": "sprintdesk",
		"data":   data,
	}

	n.send(event.MCPSessionID, "notifications/message", params)
}

// send dispatches to a specific client or broadcasts.
func (n *MCPNotifier) send(mcpSessionID, method string, params map[string]any) {
	if mcpSessionID != "" {
		if err := n.sender.SendNotificationToSpecificClient(mcpSessionID, method, params); err != nil {
			slog.Debug("mcp notification failed, falling back to broadcast",
				"session_id", mcpSessionID,
				"method", method,
				"error", err)
			n.sender.SendNotificationToAllClients(method, params)
		}
		return
	}
	n.sender.SendNotificationToAllClients(method, params)
}

// clearDebounce drops the debounce entry once a class sync is over.
func (n *MCPNotifier) clearDebounce(classID string) {
	if classID == "" {
		return
	}
	n.mu.Lock()
	delete(n.lastSent, classID)
	n.mu.Unlock()
}
