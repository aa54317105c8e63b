package autopost

import (
	"time"

	"github.com/QuoteArtHQ/quoteart-backend/internal/models"
)

// ShouldPost reports whether a campaign is due at now. A campaign that has
// never posted is always due; otherwise whole elapsed minutes are compared
// against the configured interval (exactly equal counts as due).
func ShouldPost(c models.AutoPostCampaign, now time.Time) bool {
	if c.LastPostTime == nil {
		return true
	}
	elapsedMinutes := int(now.Sub(*c.LastPostTime) / time.Minute)
	return elapsedMinutes >= c.IntervalMinutes
}
