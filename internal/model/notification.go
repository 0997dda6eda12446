package model

// Notification is the fire-and-forget event handed to the dispatcher when an
// exchange changes state. Delivery is best-effort and never blocks a
// transition from committing.
type Notification struct {
	TenantID   string            `json:"tenant_id"`
	Type       string            `json:"type"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	ActionLink string            `json:"action_link"`
	Priority   string            `json:"priority"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
