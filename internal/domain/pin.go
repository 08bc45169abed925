package domain

import "time"

const (
	MinPinLevel = 1
	MaxPinLevel = 5
)

// Pin is one claimable map slot.
type Pin struct {
	ID          string
	Owner       string
	Type        string
	Level       int
	Lat         float64
	Lng         float64
	Color       string
	CreatedAt   time.Time
	LastTradeAt time.Time
}

// ClampLevel bounds level to the accrual range.
func ClampLevel(level int) int {
	if level < MinPinLevel {
		return MinPinLevel
	}
	if level > MaxPinLevel {
		return MaxPinLevel
	}
	return level
}

// IsOwned reports whether the pin has a non-empty owner.
func (p *Pin) IsOwned() bool {
	return NormalizeOwner(p.Owner) != ""
}

// OwnedBy compares the pin owner case-insensitively.
func (p *Pin) OwnedBy(owner string) bool {
	return p.IsOwned() && SameOwner(p.Owner, owner)
}

// Clone returns a copy.
func (p *Pin) Clone() *Pin {
	c := *p
	return &c
}
