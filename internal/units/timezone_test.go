package units

import (
	"testing"
	"time"
)

func TestIsTimezoneValid(t *testing.T) {
	tests := []struct {
		tz    string
		valid bool
	}{
		{"UTC", true},
		{"Europe/Paris", true},
		{"Europe/Zurich", true},
		{"", false},
		{"Not/AZone", false},
	}
	for _, tt := range tests {
		if got := IsTimezoneValid(tt.tz); got != tt.valid {
			t.Errorf("IsTimezoneValid(%q) = %v, want %v", tt.tz, got, tt.valid)
		}
	}
}

func TestSiteLocation(t *testing.T) {
	loc, err := SiteLocation("")
	if err != nil || loc != time.UTC {
		t.Fatalf("SiteLocation(\"\") = %v, %v; want UTC", loc, err)
	}

	loc, err = SiteLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("SiteLocation: %v", err)
	}
	if loc.String() != "Europe/Paris" {
		t.Errorf("got %s", loc)
	}

	if _, err := SiteLocation("Mars/Olympus"); err == nil {
		t.Error("expected error for unknown zone")
	}
}
