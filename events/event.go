package events

import (
	"time"

	"github.com/google/uuid"
)

type Type string

// Routing keys on the events exchange.
const (
	LeadCreated     Type = "widget.lead.created"
	CallbackCreated Type = "widget.callback.created"
	ChatStarted     Type = "widget.chat.started"
	ChatMessage     Type = "widget.chat.message"
)

// IntakeEvent is emitted after an intake transaction commits.
type IntakeEvent struct {
	ID         string
	Type       Type
	ProjectID  uint
	OccurredAt time.Time
	Data       any
}

// NewIntakeEvent stamps a fresh id on the event.
func NewIntakeEvent(t Type, projectID uint, at time.Time, data any) IntakeEvent {
	return IntakeEvent{
		ID:         uuid.NewString(),
		Type:       t,
		ProjectID:  projectID,
		OccurredAt: at,
		Data:       data,
	}
}

type Meta struct {
	// Unique event ID
	ID string `json:"id"`
	// Event name, e.g. widget.lead.created
	Type string `json:"type"`
	// Emitting service
	Producer  string    `json:"producer"`
	ProjectID uint      `json:"project_id"`
	Time      time.Time `json:"time"`
}

// Envelope is the wire shape shared by webhooks and the message bus.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

const producer = "widgethub"

func (e IntakeEvent) Envelope() Envelope {
	return Envelope{
		Meta: Meta{
			ID:        e.ID,
			Type:      string(e.Type),
			Producer:  producer,
			ProjectID: e.ProjectID,
			Time:      e.OccurredAt,
		},
		Data: e.Data,
	}
}

// Notifier accepts events for asynchronous delivery. Implementations must not
// block the caller.
type Notifier interface {
	Notify(evt IntakeEvent)
}

// Discard drops every event.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(IntakeEvent) {}
