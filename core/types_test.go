package core

import (
	"math"
	"testing"
	"time"
)

func TestAddSafe(t *testing.T) {
	if v, err := AddSafe(10, 5); err != nil || v != 15 {
		t.Fatalf("got %v %v", v, err)
	}
	if _, err := AddSafe(math.MaxInt64, 1); err == nil {
		t.Fatalf("expected overflow")
	}
}

func TestNormalizeCustomerID(t *testing.T) {
	id, err := NormalizeCustomerID(" Alice ")
	if err != nil || id != "alice" {
		t.Fatalf("got %v %v", id, err)
	}
	if _, err := NormalizeCustomerID("   "); err == nil {
		t.Fatalf("expected empty error")
	}
}

func TestValidateCenterID(t *testing.T) {
	if err := ValidateCenterID("centro-01"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := ValidateCenterID("bad centro"); err == nil {
		t.Fatalf("expected invalid center err")
	}
	if err := ValidateCenterID(""); err == nil {
		t.Fatalf("expected empty center err")
	}
}

func TestDayDiff(t *testing.T) {
	base := time.Date(2024, 3, 10, 23, 55, 0, 0, time.UTC)
	sameDay := time.Date(2024, 3, 10, 0, 5, 0, 0, time.UTC)
	nextDay := time.Date(2024, 3, 11, 0, 5, 0, 0, time.UTC)

	if d := DayDiff(base, sameDay); d != 0 {
		t.Fatalf("same day diff = %d", d)
	}
	if d := DayDiff(nextDay, base); d != 1 {
		t.Fatalf("next day diff = %d", d)
	}
	if d := DayDiff(base, nextDay); d != -1 {
		t.Fatalf("backward diff = %d", d)
	}
	if d := DayDiff(base.AddDate(0, 0, 3), base); d != 3 {
		t.Fatalf("gap diff = %d", d)
	}
}

func TestStatsClone(t *testing.T) {
	d := DateOnly(time.Now())
	s := Stats{ID: "s1", TotalXP: 60, LastSyncDate: &d}
	cp := s.Clone()
	*cp.LastSyncDate = cp.LastSyncDate.AddDate(0, 0, 5)
	if !s.LastSyncDate.Equal(d) {
		t.Fatal("clone shares last sync date pointer")
	}
}
