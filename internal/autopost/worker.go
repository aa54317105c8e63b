package autopost

import (
	"context"
	"time"
)

// StartCampaignWorker runs the campaign sweep on a fixed interval until the
// context is cancelled. Enable it from main behind an env gate.
func (r *Runner) StartCampaignWorker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	r.logger().Printf("[AutoPost] worker started interval=%s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run := func() {
		sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		cycles, err := r.ProcessCampaignsOnce(sweepCtx, "")
		cancel()
		if err != nil {
			r.logger().Printf("[AutoPost] sweep error err=%v", err)
			return
		}
		ran := 0
		for _, c := range cycles {
			if !c.Skipped {
				ran++
			}
		}
		if ran > 0 {
			r.logger().Printf("[AutoPost] sweep ok campaigns=%d ran=%d", len(cycles), ran)
		}
	}

	run()
	for {
		select {
		case <-ctx.Done():
			r.logger().Printf("[AutoPost] worker stopped err=%v", ctx.Err())
			return
		case <-ticker.C:
			run()
		}
	}
}

// StartScheduledPostsWorker runs the due-post sweep on a fixed interval until
// the context is cancelled.
func (r *Runner) StartScheduledPostsWorker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	r.logger().Printf("[ScheduledPosts] worker started interval=%s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run := func() {
		sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		n, err := r.ProcessScheduledPostsOnce(sweepCtx)
		cancel()
		if err != nil {
			r.logger().Printf("[ScheduledPosts] sweep error err=%v", err)
			return
		}
		if n > 0 {
			r.logger().Printf("[ScheduledPosts] processed=%d", n)
		}
	}

	run()
	for {
		select {
		case <-ctx.Done():
			r.logger().Printf("[ScheduledPosts] worker stopped err=%v", ctx.Err())
			return
		case <-ticker.C:
			run()
		}
	}
}
