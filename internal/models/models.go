package models

import "time"

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	ImageURL  *string   `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SocialConnection is one authorized destination account per platform per user.
// The auto-posting runners read these; only the user mutates them.
type SocialConnection struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	Platform           string    `json:"platform"`
	AccessToken        string    `json:"accessToken"`
	PageAccessToken    *string   `json:"pageAccessToken,omitempty"`
	ProfileID          string    `json:"profileId"`
	InstagramAccountID *string   `json:"instagramAccountId,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// AutoPostCampaign is a recurring auto-posting configuration. IntervalMinutes >= 1.
type AutoPostCampaign struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	IsEnabled       bool       `json:"isEnabled"`
	IntervalMinutes int        `json:"interval"`
	Platforms       []string   `json:"platforms"`
	Language        string     `json:"language"`
	Template        string     `json:"template"`
	LastPostTime    *time.Time `json:"lastPostTime,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Scheduled post statuses. published/failed/cancelled are terminal; the worker
// transitions scheduled -> published|failed exactly once.
const (
	PostStatusDraft     = "draft"
	PostStatusScheduled = "scheduled"
	PostStatusPublished = "published"
	PostStatusFailed    = "failed"
	PostStatusCancelled = "cancelled"
)

type ScheduledPost struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"userId"`
	Title              string     `json:"title"`
	Content            string     `json:"content"`
	PostType           string     `json:"postType"`
	Platforms          []string   `json:"platforms"`
	Hashtags           []string   `json:"hashtags,omitempty"`
	MediaFiles         []string   `json:"mediaFiles,omitempty"`
	Status             string     `json:"status"`
	ScheduledAt        *time.Time `json:"scheduledAt,omitempty"`
	PublishedPlatforms []string   `json:"publishedPlatforms,omitempty"`
	FailureReason      *string    `json:"failureReason,omitempty"`
	PublishedAt        *time.Time `json:"publishedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Subscription statuses. At most one active subscription per user, enforced by
// a partial unique index in the store.
const (
	SubStatusPending  = "pending"
	SubStatusActive   = "active"
	SubStatusCanceled = "canceled"
	SubStatusExpired  = "expired"
	SubStatusRejected = "rejected"
)

type Subscription struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId"`
	PlanID           string     `json:"planId"`
	Tier             string     `json:"tier"`
	Status           string     `json:"status"`
	TransactionID    *string    `json:"transactionId,omitempty"`
	AmountCents      int64      `json:"amountCents"`
	Currency         string     `json:"currency"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

type BillingPlan struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	PriceCents  int64   `json:"priceCents"`
	Currency    string  `json:"currency"`
	Interval    string  `json:"interval"`
	Tier        string  `json:"tier"`
	IsActive    bool    `json:"isActive"`
}

// PostResult is one per-platform publish outcome row, written by the runners
// and aggregated by the metrics endpoint.
type PostResult struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Source     string    `json:"source"` // "campaign" or "scheduled"
	CampaignID *string   `json:"campaignId,omitempty"`
	PostID     *string   `json:"postId,omitempty"`
	Platform   string    `json:"platform"`
	OK         bool      `json:"ok"`
	PostURL    *string   `json:"postUrl,omitempty"`
	Error      *string   `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
