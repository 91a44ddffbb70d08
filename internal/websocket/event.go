package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
)

// EventType represents what happened to an entity
type EventType string

const (
	EventTypeCreated   EventType = "created"
	EventTypeRefreshed EventType = "refreshed"
	EventTypeSnapshot  EventType = "snapshot"
)

// EntityType represents the type of entity the event is about
type EntityType string

const (
	EntityTypeBudget  EntityType = "budget"
	EntityTypeActuals EntityType = "actuals"
)

// Event is the message sent to subscribers.
// Format: { type, entity, fiscalYear, payload, timestamp }
type Event struct {
	Type   string     `json:"type"` // e.g. "budget.created"
	Entity EntityType `json:"entity"`
	// FiscalYear scopes delivery to subscribers following that year; zero reaches everyone
	FiscalYear int       `json:"fiscalYear,omitempty"`
	Payload    any       `json:"payload"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewEvent creates an unscoped event with the given type, entity, and payload
func NewEvent(eventType EventType, entityType EntityType, payload any) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:    entityType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ForYear scopes the event to one fiscal year
func (e Event) ForYear(fiscalYear int) Event {
	e.FiscalYear = fiscalYear
	return e
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// BudgetCreated announces a new triad to subscribers of its fiscal year
func BudgetCreated(triad *domain.BudgetTriad) Event {
	evt := NewEvent(EventTypeCreated, EntityTypeBudget, triad)
	if triad != nil && triad.Act != nil {
		evt = evt.ForYear(triad.Act.FiscalYear)
	}
	return evt
}

// ActualsRefreshed announces a recomputed Act scenario to subscribers of its fiscal year
func ActualsRefreshed(act *domain.BudgetScenario) Event {
	evt := NewEvent(EventTypeRefreshed, EntityTypeActuals, act)
	if act != nil {
		evt = evt.ForYear(act.FiscalYear)
	}
	return evt
}

// ActualsSnapshot is the first message a subscriber receives: the stored
// Act scenarios of the years it follows.
func ActualsSnapshot(acts []*domain.BudgetScenario) Event {
	if acts == nil {
		acts = []*domain.BudgetScenario{}
	}
	return NewEvent(EventTypeSnapshot, EntityTypeActuals, acts)
}
