package autopost

import (
	"testing"
	"time"

	"github.com/QuoteArtHQ/quoteart-backend/internal/models"
)

func TestShouldPost_NeverPostedIsAlwaysDue(t *testing.T) {
	c := models.AutoPostCampaign{IntervalMinutes: 60}
	if !ShouldPost(c, time.Now()) {
		t.Fatal("campaign with no last post time must be due")
	}
}

func TestShouldPost_IntervalBoundary(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{"one minute short", 59 * time.Minute, false},
		{"exactly the interval", 60 * time.Minute, true},
		{"past the interval", 61 * time.Minute, true},
		{"just under via seconds", 60*time.Minute - time.Second, false},
		{"floor of partial minute", 60*time.Minute + 59*time.Second, true},
	}
	for _, tc := range cases {
		last := now.Add(-tc.elapsed)
		c := models.AutoPostCampaign{IntervalMinutes: 60, LastPostTime: &last}
		if got := ShouldPost(c, now); got != tc.want {
			t.Errorf("%s: ShouldPost = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestShouldPost_MinimumInterval(t *testing.T) {
	now := time.Now()
	last := now.Add(-90 * time.Second)
	c := models.AutoPostCampaign{IntervalMinutes: 1, LastPostTime: &last}
	if !ShouldPost(c, now) {
		t.Fatal("90s elapsed with a 1 minute interval must be due")
	}
}
