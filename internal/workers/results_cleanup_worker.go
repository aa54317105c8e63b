package workers

import (
	"context"
	"database/sql"
	"log"
	"time"
)

// ResultsCleanupWorker prunes per-platform publish results older than the
// configured retention period so the bookkeeping table stays bounded.
type ResultsCleanupWorker struct {
	DB            *sql.DB
	RetentionDays int           // How long to keep post results (default: 90)
	CheckInterval time.Duration // How often to run cleanup (default: 24h)
}

// Start begins the cleanup worker loop.
func (w *ResultsCleanupWorker) Start(ctx context.Context) {
	if w.RetentionDays <= 0 {
		w.RetentionDays = 90
	}
	if w.CheckInterval <= 0 {
		w.CheckInterval = 24 * time.Hour
	}

	ticker := time.NewTicker(w.CheckInterval)
	defer ticker.Stop()

	log.Printf("[ResultsCleanupWorker] started (retention=%dd, interval=%s)", w.RetentionDays, w.CheckInterval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[ResultsCleanupWorker] stopped")
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *ResultsCleanupWorker) cleanup(ctx context.Context) {
	cutoffTime := time.Now().AddDate(0, 0, -w.RetentionDays)

	result, err := w.DB.ExecContext(ctx, `
		DELETE FROM public.post_results
		WHERE created_at < $1
	`, cutoffTime)

	if err != nil {
		log.Printf("[ResultsCleanupWorker] error: %v", err)
		return
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		log.Printf("[ResultsCleanupWorker] error getting rows affected: %v", err)
		return
	}

	if deleted > 0 {
		log.Printf("[ResultsCleanupWorker] deleted %d old post results", deleted)
	}
}
