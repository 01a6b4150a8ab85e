package model

// AutoSignOutSource records what scheduled an automatic sign-out.
type AutoSignOutSource string

const (
	AutoSignOutFromNotification AutoSignOutSource = "notification" // fallback timer of a delivered push
	AutoSignOutFromSweep        AutoSignOutSource = "sweep"        // overdue compensation
)

// AutoSignOutMessage asks the worker to sign a visit out once its delay elapses.
type AutoSignOutMessage struct {
	MessageID    string            `json:"message_id"` // idempotency key
	VisitID      string            `json:"visit_id"`
	Source       AutoSignOutSource `json:"source"`
	ScheduledAt  string            `json:"scheduled_at"`
	DelaySeconds int               `json:"delay_seconds"`
}
