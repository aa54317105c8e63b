package middleware

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// TierLimits defines what each subscription tier may create.
type TierLimits struct {
	Campaigns      int `json:"campaigns"`       // -1 = unlimited
	ScheduledPosts int `json:"scheduled_posts"` // pending posts at a time, -1 = unlimited
}

// SubscriptionEnforcer caps campaign and scheduled-post creation per tier.
// The free tier gets a taste; premium removes the caps.
type SubscriptionEnforcer struct {
	DB     *sql.DB
	Limits map[string]TierLimits
}

func NewSubscriptionEnforcer(db *sql.DB) *SubscriptionEnforcer {
	limits := map[string]TierLimits{
		"free": {
			Campaigns:      1,
			ScheduledPosts: 10,
		},
		"premium": {
			Campaigns:      -1,
			ScheduledPosts: -1,
		},
	}

	return &SubscriptionEnforcer{
		DB:     db,
		Limits: limits,
	}
}

// Middleware returns an HTTP middleware that enforces tier limits on create
// requests. Reads and deletes always pass through.
func (se *SubscriptionEnforcer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || se.shouldSkip(r) {
			next.ServeHTTP(w, r)
			return
		}

		userID := se.extractUserID(r)
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		tier, err := se.getUserTier(userID)
		if err != nil {
			// If the tier can't be determined, enforce the free limits.
			tier = "free"
		}

		if !se.checkLimits(r, userID, tier) {
			se.respondLimitExceeded(w, tier)
			return
		}

		ctx := context.WithValue(r.Context(), tierContextKey, tier)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const tierContextKey contextKey = "subscription_tier"

// shouldSkip returns true for routes that never count against tier limits.
func (se *SubscriptionEnforcer) shouldSkip(r *http.Request) bool {
	skipPaths := []string{
		"/api/users",
		"/api/billing",
		"/api/cron",
		"/webhook",
		"/health",
		"/api/events",
	}

	for _, path := range skipPaths {
		if strings.HasPrefix(r.URL.Path, path) {
			return true
		}
	}

	return false
}

// extractUserID finds the acting user: a /user/{userId} path segment, a
// userId query param, or the userId field of a JSON body. The create routes
// carry it in the body, so the body peek is what makes the caps bite there.
func (se *SubscriptionEnforcer) extractUserID(r *http.Request) string {
	parts := strings.Split(r.URL.Path, "/")
	for i, part := range parts {
		if part == "user" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	if id := r.URL.Query().Get("userId"); id != "" {
		return id
	}
	return peekBodyUserID(r)
}

// peekBodyUserID reads userId out of a JSON body and restores r.Body so the
// downstream handler still sees the full payload.
func peekBodyUserID(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	buf, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(buf))
	if err != nil {
		return ""
	}

	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(buf, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.UserID)
}

func (se *SubscriptionEnforcer) getUserTier(userID string) (string, error) {
	var tier string
	err := se.DB.QueryRow(`
		SELECT COALESCE(tier, 'free')
		FROM public.subscriptions
		WHERE user_id = $1 AND status = 'active'
	`, userID).Scan(&tier)

	if err == sql.ErrNoRows {
		return "free", nil
	}

	return tier, err
}

func (se *SubscriptionEnforcer) checkLimits(r *http.Request, userID, tier string) bool {
	limits := se.Limits[tier]

	if strings.Contains(r.URL.Path, "/campaigns") {
		if limits.Campaigns < 0 {
			return true
		}
		var count int
		se.DB.QueryRow(`
			SELECT COUNT(*) FROM public.auto_post_campaigns WHERE user_id = $1
		`, userID).Scan(&count)
		return count < limits.Campaigns
	}

	if strings.Contains(r.URL.Path, "/scheduled-posts") {
		if limits.ScheduledPosts < 0 {
			return true
		}
		var count int
		se.DB.QueryRow(`
			SELECT COUNT(*) FROM public.scheduled_posts
			WHERE user_id = $1 AND status IN ('draft', 'scheduled')
		`, userID).Scan(&count)
		return count < limits.ScheduledPosts
	}

	return true
}

func (se *SubscriptionEnforcer) respondLimitExceeded(w http.ResponseWriter, tier string) {
	limits := se.Limits[tier]

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)

	response := map[string]interface{}{
		"error":       "subscription_limit_exceeded",
		"message":     "Your current plan has reached its limits",
		"tier":        tier,
		"limits":      limits,
		"upgrade_url": "/account/billing",
	}

	json.NewEncoder(w).Encode(response)
}
