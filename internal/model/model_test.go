package model

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    PackStatus
		to      PackStatus
		allowed bool
	}{
		{name: "received to active", from: PackStatusReceived, to: PackStatusActive, allowed: true},
		{name: "received to returned", from: PackStatusReceived, to: PackStatusReturned, allowed: true},
		{name: "received to depleted", from: PackStatusReceived, to: PackStatusDepleted, allowed: false},
		{name: "active to depleted", from: PackStatusActive, to: PackStatusDepleted, allowed: true},
		{name: "active to returned", from: PackStatusActive, to: PackStatusReturned, allowed: true},
		{name: "active to received", from: PackStatusActive, to: PackStatusReceived, allowed: false},
		{name: "depleted to active", from: PackStatusDepleted, to: PackStatusActive, allowed: false},
		{name: "returned to active", from: PackStatusReturned, to: PackStatusActive, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanTransition(tt.from, tt.to)
			if got != tt.allowed {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestTerminalStatuses(t *testing.T) {
	if PackStatusReceived.Terminal() {
		t.Fatalf("RECEIVED must not be terminal")
	}
	if PackStatusActive.Terminal() {
		t.Fatalf("ACTIVE must not be terminal")
	}
	if !PackStatusDepleted.Terminal() {
		t.Fatalf("DEPLETED must be terminal")
	}
	if !PackStatusReturned.Terminal() {
		t.Fatalf("RETURNED must be terminal")
	}
}

func TestCodeOf(t *testing.T) {
	conflictErr := NewConflict("pack %s already activated", "p-1")

	if CodeOf(conflictErr) != CodeConflict {
		t.Fatalf("CodeOf = %s, want %s", CodeOf(conflictErr), CodeConflict)
	}

	wrapped := fmt.Errorf("activate pack: %w", conflictErr)
	if CodeOf(wrapped) != CodeConflict {
		t.Fatalf("CodeOf(wrapped) = %s, want %s", CodeOf(wrapped), CodeConflict)
	}

	if CodeOf(errors.New("boom")) != CodeInternal {
		t.Fatalf("CodeOf(plain error) must be %s", CodeInternal)
	}
}

func TestPublicMessageHidesInternalDetails(t *testing.T) {
	internal := NewInternal(errors.New("pq: relation does not exist"))
	if msg := PublicMessage(internal); msg != "internal error" {
		t.Fatalf("PublicMessage(internal) = %q, want %q", msg, "internal error")
	}

	validation := NewValidation("closing serial exceeds pack range")
	if msg := PublicMessage(validation); msg != "closing serial exceeds pack range" {
		t.Fatalf("PublicMessage(validation) = %q", msg)
	}
}

func TestBinNumberIsDisplayOrderPlusOne(t *testing.T) {
	b := &Bin{DisplayOrder: 0}
	if b.Number() != 1 {
		t.Fatalf("Number() = %d, want 1", b.Number())
	}

	b.DisplayOrder = 11
	if b.Number() != 12 {
		t.Fatalf("Number() = %d, want 12", b.Number())
	}
}

func TestGamePrice(t *testing.T) {
	g := &Game{PriceCents: 250}
	if g.Price().String() != "2.5" {
		t.Fatalf("Price() = %s, want 2.5", g.Price().String())
	}
}

// Граница включающая: запись истекает ровно в ExpiresAt, как и по часам БД.
func TestDayCloseStagingExpired(t *testing.T) {
	deadline := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	s := &DayCloseStaging{ExpiresAt: deadline}

	if s.Expired(deadline.Add(-time.Second)) {
		t.Fatal("staging expired before its deadline")
	}
	if !s.Expired(deadline) {
		t.Fatal("staging must expire exactly at its deadline")
	}
	if !s.Expired(deadline.Add(time.Second)) {
		t.Fatal("staging must stay expired after its deadline")
	}
}
