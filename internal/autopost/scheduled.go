package autopost

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lib/pq"

	"github.com/QuoteArtHQ/quoteart-backend/internal/models"
)

type duePost struct {
	id         string
	userID     string
	title      string
	content    string
	platforms  []string
	hashtags   []string
	mediaFiles []string
	postType   string
}

// ProcessScheduledPostsOnce publishes every post whose schedule time has
// passed. Each post transitions exactly once: published when at least one
// platform succeeded, failed when all did. Both states are terminal; a failed
// post is not retried on later sweeps.
func (r *Runner) ProcessScheduledPostsOnce(ctx context.Context) (int, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(title, ''), COALESCE(content, ''),
		       COALESCE(platforms, ARRAY[]::text[]),
		       COALESCE(hashtags, ARRAY[]::text[]),
		       COALESCE(media_files, ARRAY[]::text[]),
		       COALESCE(post_type, 'quote')
		  FROM public.scheduled_posts
		 WHERE status = 'scheduled'
		   AND scheduled_at IS NOT NULL
		   AND scheduled_at <= NOW()
		 ORDER BY scheduled_at ASC
	`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	due := make([]duePost, 0)
	for rows.Next() {
		var p duePost
		var platforms, hashtags, media pq.StringArray
		if err := rows.Scan(&p.id, &p.userID, &p.title, &p.content, &platforms, &hashtags, &media, &p.postType); err != nil {
			return 0, err
		}
		p.platforms = platforms
		p.hashtags = hashtags
		p.mediaFiles = media
		due = append(due, p)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	processed := 0
	for _, p := range due {
		r.runScheduledPost(ctx, p)
		processed++
	}
	return processed, nil
}

func (r *Runner) runScheduledPost(ctx context.Context, p duePost) {
	r.logger().Printf("[ScheduledPosts] post_due postId=%s userId=%s type=%s platforms=%v", p.id, p.userID, p.postType, p.platforms)
	r.notify(p.userID, p.id, "publishing")

	caption := buildScheduledCaption(p)
	if strings.TrimSpace(caption) == "" {
		r.failScheduledPost(ctx, p, "empty_content")
		return
	}
	if len(p.platforms) == 0 {
		r.failScheduledPost(ctx, p, "missing_platforms")
		return
	}

	imageURL, err := r.resolveScheduledMedia(ctx, p)
	if err != nil {
		r.failScheduledPost(ctx, p, fmt.Sprintf("media_failed: %v", truncate(err.Error(), 300)))
		return
	}

	conns, err := r.loadConnections(ctx, p.userID, p.platforms)
	if err != nil {
		r.failScheduledPost(ctx, p, fmt.Sprintf("connections_load_failed: %v", truncate(err.Error(), 300)))
		return
	}
	connByPlatform := make(map[string]connection, len(conns))
	for _, c := range conns {
		connByPlatform[c.platform] = c
	}

	// All platforms publish concurrently; the join waits for every result,
	// success or failure, before classifying (no short-circuiting).
	outcomes := make([]PlatformOutcome, len(p.platforms))
	var wg sync.WaitGroup
	for i, platform := range p.platforms {
		conn, ok := connByPlatform[platform]
		if !ok {
			outcomes[i] = PlatformOutcome{Platform: platform, Error: "not_connected"}
			continue
		}
		wg.Add(1)
		go func(i int, conn connection) {
			defer wg.Done()
			outcomes[i] = r.publishToConnection(ctx, conn, caption, imageURL)
		}(i, conn)
	}
	wg.Wait()

	for _, o := range outcomes {
		r.recordResult(ctx, p.userID, "scheduled", nil, &p.id, o)
	}

	succeeded, failed := splitOutcomes(outcomes)
	if len(succeeded) > 0 {
		if _, err := r.DB.ExecContext(ctx, `
			UPDATE public.scheduled_posts
			   SET status = 'published',
			       published_platforms = $2,
			       failure_reason = NULL,
			       published_at = NOW(),
			       updated_at = NOW()
			 WHERE id = $1 AND status = 'scheduled'
		`, p.id, pq.Array(succeeded)); err != nil {
			r.logger().Printf("[ScheduledPosts] publish_update_failed postId=%s err=%v", p.id, err)
		}
		r.logger().Printf("[ScheduledPosts] post_published postId=%s userId=%s ok=%v failed=%v", p.id, p.userID, succeeded, failed)
		r.notify(p.userID, p.id, models.PostStatusPublished)
		return
	}

	r.failScheduledPost(ctx, p, aggregateFailureReason(outcomes))
}

// failScheduledPost moves a post to its terminal failed state with a
// human-readable reason.
func (r *Runner) failScheduledPost(ctx context.Context, p duePost, reason string) {
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE public.scheduled_posts
		   SET status = 'failed',
		       failure_reason = $2,
		       updated_at = NOW()
		 WHERE id = $1 AND status = 'scheduled'
	`, p.id, truncate(reason, 800)); err != nil {
		r.logger().Printf("[ScheduledPosts] fail_update_failed postId=%s err=%v", p.id, err)
	}
	r.logger().Printf("[ScheduledPosts] post_failed postId=%s userId=%s reason=%s", p.id, p.userID, truncate(reason, 300))
	r.notify(p.userID, p.id, models.PostStatusFailed)
}

// resolveScheduledMedia returns the hosted image URL for a post: the first
// attached media file (re-uploaded for a durable URL) or, with no attachment,
// a freshly rendered quote card. Every platform publish is photo-based, so a
// post never goes out without an image URL.
func (r *Runner) resolveScheduledMedia(ctx context.Context, p duePost) (string, error) {
	if len(p.mediaFiles) > 0 {
		return r.Media.Upload(ctx, p.mediaFiles[0])
	}

	imageBytes, err := r.Render(p.content, "", "")
	if err != nil {
		return "", err
	}
	return r.Media.UploadBytes(ctx, imageBytes, "quote.png")
}

func buildScheduledCaption(p duePost) string {
	caption := strings.TrimSpace(p.content)
	if caption == "" {
		caption = strings.TrimSpace(p.title)
	}
	if len(p.hashtags) > 0 {
		tags := make([]string, 0, len(p.hashtags))
		for _, h := range p.hashtags {
			h = strings.TrimSpace(strings.TrimPrefix(h, "#"))
			if h != "" {
				tags = append(tags, "#"+h)
			}
		}
		if len(tags) > 0 {
			caption += "\n\n" + strings.Join(tags, " ")
		}
	}
	return caption
}

// aggregateFailureReason names every failed platform so the stored reason
// reads like "facebook: token expired; instagram: container not ready".
func aggregateFailureReason(outcomes []PlatformOutcome) string {
	parts := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.OK {
			continue
		}
		msg := o.Error
		if msg == "" {
			msg = "failed"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", o.Platform, truncate(msg, 200)))
	}
	return strings.Join(parts, "; ")
}
