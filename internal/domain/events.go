package domain

import (
	"fmt"
	"time"
)

// Event types
const (
	EventTypeOfferCreated  = "Offer Created"
	EventTypeOfferAccepted = "Trade Accepted"
	EventTypeOfferRejected = "Offer Rejected"
	EventTypeOfferCanceled = "Offer Canceled"
	EventTypeOfferExpired  = "Offer Expired"
	EventTypePinPurchased  = "Pin Purchased"
	EventTypePinUpgraded   = "Pin Upgraded"
	EventTypeIncomeTick    = "Income Tick"
)

const (
	DefaultEventCity = "Global"
	MaxEvents        = 500
)

// Event is one entry of the public activity feed.
type Event struct {
	ID           string
	At           time.Time
	Type         string
	City         string
	Note         string
	CooldownMins int
}

// NewEvent builds a feed event with the default city.
func NewEvent(eventType, note string, at time.Time) *Event {
	return &Event{
		At:   at,
		Type: eventType,
		City: DefaultEventCity,
		Note: note,
	}
}

// OfferNote renders the feed line used for offer lifecycle events.
func OfferNote(o *Offer) string {
	return fmt.Sprintf("%s → %s (pin %s) £%d", o.FromOwner, o.ToOwner, o.PinID, o.Amount)
}
