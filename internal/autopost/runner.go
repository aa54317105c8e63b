// Package autopost runs the two posting sweeps: interval-based auto-posting
// campaigns and absolute-time scheduled posts. Each sweep reads fresh state
// from the database, publishes through the social client, and writes back its
// own status updates; failures in one item never abort the sweep.
package autopost

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/QuoteArtHQ/quoteart-backend/internal/models"
	"github.com/QuoteArtHQ/quoteart-backend/internal/quotes"
	"github.com/QuoteArtHQ/quoteart-backend/internal/retry"
	"github.com/QuoteArtHQ/quoteart-backend/internal/social"
)

type QuoteSource interface {
	Fetch(ctx context.Context, language string) (quotes.Quote, error)
}

type MediaUploader interface {
	Upload(ctx context.Context, src string) (string, error)
	UploadBytes(ctx context.Context, data []byte, filename string) (string, error)
}

type Publisher interface {
	PublishFacebookPhoto(ctx context.Context, pageID, pageToken, caption, imageURL string) (social.PublishResult, error)
	PublishInstagramImage(ctx context.Context, igAccountID, accessToken, caption, imageURL string) (social.PublishResult, error)
}

// Notifier receives post status transitions for realtime fan-out. May be nil.
type Notifier interface {
	NotifyPostStatus(userID, postID, status string)
}

// RenderFunc renders quote text into PNG bytes.
type RenderFunc func(text, author, template string) ([]byte, error)

type Runner struct {
	DB     *sql.DB
	Quotes QuoteSource
	Render RenderFunc
	Media  MediaUploader
	Social Publisher
	Policy retry.Policy
	Logger *log.Logger
	Notify Notifier
	Now    func() time.Time
}

func (r *Runner) logger() *log.Logger {
	if r.Logger == nil {
		return log.Default()
	}
	return r.Logger
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now()
}

func (r *Runner) notify(userID, postID, status string) {
	if r.Notify != nil {
		r.Notify.NotifyPostStatus(userID, postID, status)
	}
}

// PlatformOutcome is one per-platform publish result within a single cycle.
type PlatformOutcome struct {
	Platform string `json:"platform"`
	OK       bool   `json:"ok"`
	PostURL  string `json:"postUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CampaignCycle is the explicit per-campaign state threaded through one run:
// the quote that was fetched, the image that was uploaded, and what each
// platform did with it.
type CampaignCycle struct {
	CampaignID string            `json:"campaignId"`
	UserID     string            `json:"userId"`
	Skipped    bool              `json:"skipped"`
	Quote      quotes.Quote      `json:"quote,omitempty"`
	ImageURL   string            `json:"imageUrl,omitempty"`
	Outcomes   []PlatformOutcome `json:"outcomes,omitempty"`
	Error      string            `json:"error,omitempty"`
}

type connection struct {
	platform           string
	accessToken        string
	pageAccessToken    sql.NullString
	profileID          string
	instagramAccountID sql.NullString
}

// ProcessCampaignsOnce sweeps enabled campaigns, optionally scoped to one
// user, and runs every due campaign. Per-campaign failures are recorded in the
// returned cycles; only query-level failures return an error.
func (r *Runner) ProcessCampaignsOnce(ctx context.Context, userID string) ([]CampaignCycle, error) {
	query := `
		SELECT id, user_id, interval_minutes, COALESCE(platforms, ARRAY[]::text[]),
		       COALESCE(language, 'en'), COALESCE(template, 'classic'), last_post_time
		  FROM public.auto_post_campaigns
		 WHERE is_enabled = true`
	args := []interface{}{}
	if strings.TrimSpace(userID) != "" {
		query += ` AND user_id = $1`
		args = append(args, userID)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := make([]models.AutoPostCampaign, 0)
	for rows.Next() {
		var c models.AutoPostCampaign
		var platforms pq.StringArray
		var last sql.NullTime
		if err := rows.Scan(&c.ID, &c.UserID, &c.IntervalMinutes, &platforms, &c.Language, &c.Template, &last); err != nil {
			return nil, err
		}
		c.Platforms = platforms
		if last.Valid {
			t := last.Time
			c.LastPostTime = &t
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cycles := make([]CampaignCycle, 0, len(campaigns))
	for _, c := range campaigns {
		cycles = append(cycles, r.runCampaign(ctx, c))
	}
	return cycles, nil
}

// runCampaign executes one campaign cycle: eligibility, content, media,
// per-connection publish, bookkeeping. last_post_time advances to the run time
// even on partial failure; a failed platform waits for the next interval.
func (r *Runner) runCampaign(ctx context.Context, c models.AutoPostCampaign) CampaignCycle {
	cycle := CampaignCycle{CampaignID: c.ID, UserID: c.UserID}
	runTime := r.now()

	if !ShouldPost(c, runTime) {
		cycle.Skipped = true
		return cycle
	}
	r.logger().Printf("[AutoPost] campaign_due campaignId=%s userId=%s interval=%dm platforms=%v",
		c.ID, c.UserID, c.IntervalMinutes, c.Platforms)

	var q quotes.Quote
	err := retry.Do(ctx, r.Policy, "quote_fetch", func(ctx context.Context) error {
		fetched, ferr := r.Quotes.Fetch(ctx, c.Language)
		if ferr != nil {
			return ferr
		}
		q = fetched
		return nil
	})
	if err != nil {
		cycle.Error = fmt.Sprintf("quote_fetch_failed: %v", err)
		r.logger().Printf("[AutoPost] quote_fetch_failed campaignId=%s userId=%s err=%v", c.ID, c.UserID, err)
		return cycle
	}
	cycle.Quote = q

	imageBytes, err := r.Render(q.Text, q.Author, c.Template)
	if err != nil {
		cycle.Error = fmt.Sprintf("render_failed: %v", err)
		r.logger().Printf("[AutoPost] render_failed campaignId=%s userId=%s err=%v", c.ID, c.UserID, err)
		return cycle
	}

	var imageURL string
	err = retry.Do(ctx, r.Policy, "media_upload", func(ctx context.Context) error {
		uploaded, uerr := r.Media.UploadBytes(ctx, imageBytes, "quote.png")
		if uerr != nil {
			return uerr
		}
		imageURL = uploaded
		return nil
	})
	if err != nil {
		cycle.Error = fmt.Sprintf("media_upload_failed: %v", err)
		r.logger().Printf("[AutoPost] media_upload_failed campaignId=%s userId=%s err=%v", c.ID, c.UserID, err)
		return cycle
	}
	cycle.ImageURL = imageURL

	caption := formatCaption(q)
	conns, err := r.loadConnections(ctx, c.UserID, c.Platforms)
	if err != nil {
		cycle.Error = fmt.Sprintf("connections_load_failed: %v", err)
		r.logger().Printf("[AutoPost] connections_load_failed campaignId=%s userId=%s err=%v", c.ID, c.UserID, err)
		return cycle
	}
	if len(conns) == 0 {
		cycle.Error = "no_connected_accounts"
	}

	for _, conn := range conns {
		outcome := r.publishToConnection(ctx, conn, caption, imageURL)
		cycle.Outcomes = append(cycle.Outcomes, outcome)
		r.recordResult(ctx, c.UserID, "campaign", &c.ID, nil, outcome)
	}

	// At-least-once, best-effort: the interval clock advances regardless of
	// partial failure so a flaky platform cannot stall the campaign.
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE public.auto_post_campaigns
		   SET last_post_time = $2, updated_at = NOW()
		 WHERE id = $1
	`, c.ID, runTime); err != nil {
		r.logger().Printf("[AutoPost] last_post_time_update_failed campaignId=%s err=%v", c.ID, err)
	}

	ok, failed := splitOutcomes(cycle.Outcomes)
	r.logger().Printf("[AutoPost] campaign_done campaignId=%s userId=%s ok=%v failed=%v", c.ID, c.UserID, ok, failed)
	return cycle
}

// publishToConnection routes one publish to the platform-specific flow, each
// call guarded by its own retry wrapper.
func (r *Runner) publishToConnection(ctx context.Context, conn connection, caption, imageURL string) PlatformOutcome {
	outcome := PlatformOutcome{Platform: conn.platform}
	var res social.PublishResult
	var err error

	switch conn.platform {
	case "facebook":
		token := conn.accessToken
		if conn.pageAccessToken.Valid && strings.TrimSpace(conn.pageAccessToken.String) != "" {
			token = conn.pageAccessToken.String
		}
		err = retry.Do(ctx, r.Policy, "publish_facebook", func(ctx context.Context) error {
			pr, perr := r.Social.PublishFacebookPhoto(ctx, conn.profileID, token, caption, imageURL)
			if perr != nil {
				return perr
			}
			res = pr
			return nil
		})
	case "instagram":
		if !conn.instagramAccountID.Valid || strings.TrimSpace(conn.instagramAccountID.String) == "" {
			outcome.Error = "instagram_account_missing"
			return outcome
		}
		err = retry.Do(ctx, r.Policy, "publish_instagram", func(ctx context.Context) error {
			pr, perr := r.Social.PublishInstagramImage(ctx, conn.instagramAccountID.String, conn.accessToken, caption, imageURL)
			if perr != nil {
				return perr
			}
			res = pr
			return nil
		})
	default:
		outcome.Error = "unsupported_platform"
		return outcome
	}

	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.OK = true
	outcome.PostURL = res.PostURL
	return outcome
}

func (r *Runner) loadConnections(ctx context.Context, userID string, platforms []string) ([]connection, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT platform, access_token, page_access_token, profile_id, instagram_account_id
		  FROM public.social_connections
		 WHERE user_id = $1 AND platform = ANY($2)
	`, userID, pq.Array(platforms))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conns := make([]connection, 0)
	for rows.Next() {
		var c connection
		if err := rows.Scan(&c.platform, &c.accessToken, &c.pageAccessToken, &c.profileID, &c.instagramAccountID); err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

func (r *Runner) recordResult(ctx context.Context, userID, source string, campaignID, postID *string, o PlatformOutcome) {
	var postURL, errText interface{}
	if o.PostURL != "" {
		postURL = o.PostURL
	}
	if o.Error != "" {
		errText = truncate(o.Error, 400)
	}
	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO public.post_results
		  (id, user_id, source, campaign_id, post_id, platform, ok, post_url, error, created_at)
		VALUES (gen_random_uuid()::text, $1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`, userID, source, campaignID, postID, o.Platform, o.OK, postURL, errText); err != nil {
		r.logger().Printf("[AutoPost] result_insert_failed userId=%s platform=%s err=%v", userID, o.Platform, err)
	}
}

func formatCaption(q quotes.Quote) string {
	if q.Author == "" {
		return q.Text
	}
	return fmt.Sprintf("%s\n\n— %s", q.Text, q.Author)
}

func splitOutcomes(outcomes []PlatformOutcome) (ok, failed []string) {
	for _, o := range outcomes {
		if o.OK {
			ok = append(ok, o.Platform)
		} else {
			failed = append(failed, o.Platform)
		}
	}
	sort.Strings(ok)
	sort.Strings(failed)
	return ok, failed
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
