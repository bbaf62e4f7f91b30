package dailybrief

import (
	"context"
	"encoding/json"
	"time"
)

// EventType is a delivery event reported by the mail provider.
type EventType string

const (
	EventDelivered  EventType = "delivered"
	EventOpened     EventType = "opened"
	EventClicked    EventType = "clicked"
	EventBounced    EventType = "bounced"
	EventComplained EventType = "complained"
)

var providerEvents = map[string]EventType{
	"email.delivered":  EventDelivered,
	"email.opened":     EventOpened,
	"email.clicked":    EventClicked,
	"email.bounced":    EventBounced,
	"email.complained": EventComplained,
}

// EventTypeFromProvider maps a provider event name. Unknown names are kept verbatim.
func EventTypeFromProvider(name string) EventType {
	if t, ok := providerEvents[name]; ok {
		return t
	}
	return EventType(name)
}

// Event is one analytics record.
type Event struct {
	ID             int `storm:"id,increment"`
	Email          string
	Type           EventType `storm:"index"`
	NewsletterDate string    `storm:"index"`
	Metadata       json.RawMessage
	CreatedAt      time.Time
}

// EventService is the interface that wraps methods related to delivery analytics.
type EventService interface {
	Record(ctx context.Context, e *Event) error
}
