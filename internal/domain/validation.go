package domain

import (
	"fmt"
	"strings"
)

// Validation constants
const (
	MaxOwnerLength = 254
	MaxNoteLength  = 500
	MaxOfferAmount = 1_000_000_000_000
)

// ValidateOwner validates an owner identity.
func ValidateOwner(owner string) error {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return ErrMissingParticipant
	}
	if len(owner) > MaxOwnerLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidOwner, MaxOwnerLength)
	}
	return nil
}

// ValidateOfferAmount checks amount against the configured minimum.
func ValidateOfferAmount(amount, minimum int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount < minimum {
		return fmt.Errorf("%w: minimum amount is %d", ErrAmountBelowMinimum, minimum)
	}
	if amount > MaxOfferAmount {
		return fmt.Errorf("%w: maximum amount is %d", ErrInvalidAmount, int64(MaxOfferAmount))
	}
	return nil
}

// ValidateNote trims and bounds a free-text note.
func ValidateNote(note string) (string, error) {
	note = strings.TrimSpace(note)
	if len(note) > MaxNoteLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNote, MaxNoteLength)
	}
	return note, nil
}

// ValidatePagination clamps limit and offset to sane bounds.
func ValidatePagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
