package domain

import (
	"sort"
	"strings"
	"time"
)

// OfferStatus is the lifecycle state of an offer.
type OfferStatus string

const (
	OfferStatusPending  OfferStatus = "PENDING"
	OfferStatusAccepted OfferStatus = "ACCEPTED"
	OfferStatusRejected OfferStatus = "REJECTED"
	OfferStatusCanceled OfferStatus = "CANCELED"
	OfferStatusExpired  OfferStatus = "EXPIRED"
)

var validOfferStatuses = map[OfferStatus]bool{
	OfferStatusPending:  true,
	OfferStatusAccepted: true,
	OfferStatusRejected: true,
	OfferStatusCanceled: true,
	OfferStatusExpired:  true,
}

// legacyOfferStatuses maps spellings written by older clients.
var legacyOfferStatuses = map[string]OfferStatus{
	"CANCELLED": OfferStatusCanceled,
	"DECLINED":  OfferStatusRejected,
	"WITHDRAWN": OfferStatusCanceled,
}

// ParseOfferStatus maps any stored or user supplied status onto a canonical
// status. Empty and unrecognized values become PENDING so that rows written
// by older versions keep flowing through the state machine.
func ParseOfferStatus(raw string) OfferStatus {
	up := strings.ToUpper(strings.TrimSpace(raw))
	if up == "" {
		return OfferStatusPending
	}
	if st, ok := legacyOfferStatuses[up]; ok {
		return st
	}
	if st := OfferStatus(up); validOfferStatuses[st] {
		return st
	}
	return OfferStatusPending
}

// TerminalStatusSpellings returns every upper-cased stored value that
// ParseOfferStatus maps to a terminal status. Anything else reads as PENDING.
func TerminalStatusSpellings() []string {
	out := make([]string, 0, len(validOfferStatuses)+len(legacyOfferStatuses))
	for st := range validOfferStatuses {
		if st.IsTerminal() {
			out = append(out, string(st))
		}
	}
	for raw := range legacyOfferStatuses {
		out = append(out, raw)
	}
	sort.Strings(out)
	return out
}

// ParseOfferStatusStrict is like ParseOfferStatus but rejects unknown values.
// Used for query filters where silently widening to PENDING would be wrong.
func ParseOfferStatusStrict(raw string) (OfferStatus, error) {
	up := strings.ToUpper(strings.TrimSpace(raw))
	if st, ok := legacyOfferStatuses[up]; ok {
		return st, nil
	}
	if st := OfferStatus(up); validOfferStatuses[st] {
		return st, nil
	}
	return "", ErrInvalidStatus
}

// IsTerminal reports whether no further transition is allowed.
func (s OfferStatus) IsTerminal() bool {
	return s != OfferStatusPending
}

// History actions.
const (
	HistoryCreated                = "CREATED"
	HistoryAccepted               = "ACCEPTED"
	HistoryRejected               = "REJECTED"
	HistoryCanceled               = "CANCELED"
	HistoryExpired                = "EXPIRED"
	HistoryAutoRejectPinMissing   = "AUTO_REJECT_PIN_MISSING"
	HistoryAutoRejectOwnerChanged = "AUTO_REJECT_OWNER_CHANGED"
	HistorySettled                = "SETTLED"
)

// HistoryEntry is one append-only record of an offer transition.
type HistoryEntry struct {
	At     time.Time
	Action string
	Net    *int64
	Fee    *int64
	Actor  string
}

// Offer is a buyer's escrow-backed bid for a seller's pin.
type Offer struct {
	ID        string
	PinID     string
	FromOwner string
	ToOwner   string
	Amount    int64
	Status    OfferStatus
	Note      string
	CreatedAt time.Time
	ExpiresAt time.Time
	History   []HistoryEntry
}

// IsExpired reports whether a pending offer is past its expiry at now.
func (o *Offer) IsExpired(now time.Time) bool {
	return o.Status == OfferStatusPending && !o.ExpiresAt.IsZero() && !o.ExpiresAt.After(now)
}

// Involves reports whether owner is the buyer or the seller.
func (o *Offer) Involves(owner string) bool {
	return SameOwner(o.FromOwner, owner) || SameOwner(o.ToOwner, owner)
}

// Clone returns a deep copy.
func (o *Offer) Clone() *Offer {
	c := *o
	c.History = append([]HistoryEntry(nil), o.History...)
	return &c
}

// OfferFilter narrows offer listings. Zero values match everything.
type OfferFilter struct {
	Owner  string
	PinID  string
	Status OfferStatus
}

// Matches reports whether o passes the filter.
func (f OfferFilter) Matches(o *Offer) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.PinID != "" && o.PinID != f.PinID {
		return false
	}
	if f.Owner != "" && !o.Involves(f.Owner) {
		return false
	}
	return true
}

// EpochMillis converts t to unix milliseconds; the zero time maps to 0.
func EpochMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromEpochMillis is the inverse of EpochMillis.
func FromEpochMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// NormalizeEpochMillis accepts timestamps persisted either in seconds or in
// milliseconds and returns milliseconds.
func NormalizeEpochMillis(v int64) int64 {
	if v > 0 && v < 10_000_000_000 {
		return v * 1000
	}
	if v < 0 {
		return 0
	}
	return v
}
