package domain

import (
	"testing"
	"time"
)

func TestParseOfferStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want OfferStatus
	}{
		{"PENDING", OfferStatusPending},
		{"accepted", OfferStatusAccepted},
		{" Rejected ", OfferStatusRejected},
		{"CANCELED", OfferStatusCanceled},
		{"cancelled", OfferStatusCanceled},
		{"EXPIRED", OfferStatusExpired},
		{"declined", OfferStatusRejected},
		{"withdrawn", OfferStatusCanceled},
		{"", OfferStatusPending},
		{"on-hold", OfferStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ParseOfferStatus(tt.raw); got != tt.want {
				t.Fatalf("ParseOfferStatus(%q) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseOfferStatusStrict(t *testing.T) {
	if st, err := ParseOfferStatusStrict("Cancelled"); err != nil || st != OfferStatusCanceled {
		t.Fatalf("expected CANCELED, got %s err=%v", st, err)
	}

	if _, err := ParseOfferStatusStrict("bogus"); err != ErrInvalidStatus {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestTerminalStatusSpellingsAgreeWithParse(t *testing.T) {
	spellings := TerminalStatusSpellings()
	if len(spellings) != 7 {
		t.Fatalf("expected 7 terminal spellings, got %v", spellings)
	}
	for _, raw := range spellings {
		if !ParseOfferStatus(raw).IsTerminal() {
			t.Errorf("%q is listed as terminal but parses as %s", raw, ParseOfferStatus(raw))
		}
	}
	for _, raw := range []string{"PENDING", "", "ON-HOLD"} {
		for _, s := range spellings {
			if s == raw {
				t.Errorf("%q must read as pending", raw)
			}
		}
	}
}

func TestOfferStatus_IsTerminal(t *testing.T) {
	if OfferStatusPending.IsTerminal() {
		t.Fatal("PENDING must not be terminal")
	}
	for _, st := range []OfferStatus{OfferStatusAccepted, OfferStatusRejected, OfferStatusCanceled, OfferStatusExpired} {
		if !st.IsTerminal() {
			t.Fatalf("%s must be terminal", st)
		}
	}
}

func TestOffer_IsExpired(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	pending := &Offer{Status: OfferStatusPending, ExpiresAt: now.Add(-time.Second)}
	if !pending.IsExpired(now) {
		t.Fatal("expected pending offer past expiry to be expired")
	}

	atBoundary := &Offer{Status: OfferStatusPending, ExpiresAt: now}
	if !atBoundary.IsExpired(now) {
		t.Fatal("expected offer expiring exactly now to be expired")
	}

	future := &Offer{Status: OfferStatusPending, ExpiresAt: now.Add(time.Hour)}
	if future.IsExpired(now) {
		t.Fatal("expected future offer not to be expired")
	}

	accepted := &Offer{Status: OfferStatusAccepted, ExpiresAt: now.Add(-time.Hour)}
	if accepted.IsExpired(now) {
		t.Fatal("terminal offers never expire")
	}

	noExpiry := &Offer{Status: OfferStatusPending}
	if noExpiry.IsExpired(now) {
		t.Fatal("offer without expiry must not expire")
	}
}

func TestOfferFilter_Matches(t *testing.T) {
	offer := &Offer{FromOwner: "Alice@Example.com", ToOwner: "bob", Status: OfferStatusPending}

	if !(OfferFilter{Owner: "alice@example.com"}).Matches(offer) {
		t.Fatal("expected case-insensitive buyer match")
	}
	if !(OfferFilter{Owner: " BOB "}).Matches(offer) {
		t.Fatal("expected seller match")
	}
	if (OfferFilter{Owner: "carol"}).Matches(offer) {
		t.Fatal("unexpected match for unrelated owner")
	}
	if (OfferFilter{Status: OfferStatusAccepted}).Matches(offer) {
		t.Fatal("unexpected status match")
	}
}

func TestOffer_CloneIsDeep(t *testing.T) {
	o := &Offer{ID: "o1", History: []HistoryEntry{{Action: HistoryCreated}}}
	c := o.Clone()
	c.History = append(c.History, HistoryEntry{Action: HistoryAccepted})
	c.History[0].Action = "MUTATED"

	if len(o.History) != 1 || o.History[0].Action != HistoryCreated {
		t.Fatalf("clone mutated original history: %+v", o.History)
	}
}

func TestNormalizeEpochMillis(t *testing.T) {
	if got := NormalizeEpochMillis(1_700_000_000); got != 1_700_000_000_000 {
		t.Fatalf("expected seconds to be scaled, got %d", got)
	}
	if got := NormalizeEpochMillis(1_700_000_000_123); got != 1_700_000_000_123 {
		t.Fatalf("expected millis unchanged, got %d", got)
	}
	if got := NormalizeEpochMillis(0); got != 0 {
		t.Fatalf("expected zero unchanged, got %d", got)
	}
	if got := NormalizeEpochMillis(-10); got != 0 {
		t.Fatalf("expected negative to clamp to zero, got %d", got)
	}
}

func TestEpochMillisRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
	if got := FromEpochMillis(EpochMillis(ts)); !got.Equal(ts) {
		t.Fatalf("expected %s, got %s", ts, got)
	}
	if EpochMillis(time.Time{}) != 0 || !FromEpochMillis(0).IsZero() {
		t.Fatal("zero time must map to 0 and back")
	}
}
