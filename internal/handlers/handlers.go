package handlers

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/QuoteArtHQ/quoteart-backend/internal/autopost"
	"github.com/QuoteArtHQ/quoteart-backend/internal/models"
)

var supportedPlatforms = map[string]bool{
	"facebook":  true,
	"instagram": true,
}

type Handler struct {
	db     *sql.DB
	runner *autopost.Runner
	rt     *realtimeHub
}

func New(db *sql.DB, runner *autopost.Runner) *Handler {
	return &Handler{db: db, runner: runner, rt: newRealtimeHub()}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var user models.User
	if err := decodeJSON(r, &user); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if user.ID == "" {
		user.ID = randHex(16)
	}

	query := `
		INSERT INTO public.users (id, email, name, image_url, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			-- Avoid clobbering existing values when callers don't know them (e.g. social-only OAuth callbacks)
			email = COALESCE(NULLIF(EXCLUDED.email, ''), public.users.email),
			name = COALESCE(NULLIF(EXCLUDED.name, ''), public.users.name),
			image_url = COALESCE(EXCLUDED.image_url, public.users.image_url)
		RETURNING id, email, name, image_url, created_at
	`

	err := h.db.QueryRow(query, user.ID, user.Email, user.Name, user.ImageURL).
		Scan(&user.ID, &user.Email, &user.Name, &user.ImageURL, &user.CreatedAt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")

	var user models.User
	query := `SELECT id, email, name, image_url, created_at FROM public.users WHERE id = $1`

	err := h.db.QueryRow(query, id).Scan(&user.ID, &user.Email, &user.Name, &user.ImageURL, &user.CreatedAt)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")

	var user models.User
	if err := decodeJSON(r, &user); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	query := `
		UPDATE public.users
		SET email = $2, name = $3, image_url = $4
		WHERE id = $1
		RETURNING id, email, name, image_url, created_at
	`

	err := h.db.QueryRow(query, id, user.Email, user.Name, user.ImageURL).
		Scan(&user.ID, &user.Email, &user.Name, &user.ImageURL, &user.CreatedAt)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// CreateSocialConnection upserts the destination account for one platform.
// Reconnecting the same platform replaces the stored tokens.
func (h *Handler) CreateSocialConnection(w http.ResponseWriter, r *http.Request) {
	var conn models.SocialConnection
	if err := decodeJSON(r, &conn); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if conn.UserID == "" || conn.AccessToken == "" {
		writeError(w, http.StatusBadRequest, "userId and accessToken are required")
		return
	}
	if !supportedPlatforms[conn.Platform] {
		writeError(w, http.StatusBadRequest, "unsupported_platform")
		return
	}
	if conn.ID == "" {
		conn.ID = randHex(16)
	}

	query := `
		INSERT INTO public.social_connections
		  (id, user_id, platform, access_token, page_access_token, profile_id, instagram_account_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (user_id, platform) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			page_access_token = EXCLUDED.page_access_token,
			profile_id = EXCLUDED.profile_id,
			instagram_account_id = EXCLUDED.instagram_account_id
		RETURNING id, user_id, platform, access_token, page_access_token, profile_id, instagram_account_id, created_at
	`

	err := h.db.QueryRow(query, conn.ID, conn.UserID, conn.Platform, conn.AccessToken,
		conn.PageAccessToken, conn.ProfileID, conn.InstagramAccountID).
		Scan(&conn.ID, &conn.UserID, &conn.Platform, &conn.AccessToken,
			&conn.PageAccessToken, &conn.ProfileID, &conn.InstagramAccountID, &conn.CreatedAt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, conn)
}

func (h *Handler) GetUserSocialConnections(w http.ResponseWriter, r *http.Request) {
	userID := pathVar(r, "userId")

	query := `
		SELECT id, user_id, platform, access_token, page_access_token, profile_id, instagram_account_id, created_at
		FROM public.social_connections
		WHERE user_id = $1
		ORDER BY platform ASC
	`

	rows, err := h.db.Query(query, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	connections := []models.SocialConnection{}
	for rows.Next() {
		var conn models.SocialConnection
		if err := rows.Scan(&conn.ID, &conn.UserID, &conn.Platform, &conn.AccessToken,
			&conn.PageAccessToken, &conn.ProfileID, &conn.InstagramAccountID, &conn.CreatedAt); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		connections = append(connections, conn)
	}

	writeJSON(w, http.StatusOK, connections)
}

func (h *Handler) DeleteSocialConnection(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")

	res, err := h.db.Exec(`DELETE FROM public.social_connections WHERE id = $1`, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeError(w, http.StatusNotFound, "Connection not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type campaignRequest struct {
	UserID          string   `json:"userId"`
	IsEnabled       *bool    `json:"isEnabled,omitempty"`
	IntervalMinutes int      `json:"interval"`
	Platforms       []string `json:"platforms"`
	Language        string   `json:"language"`
	Template        string   `json:"template"`
}

func (req *campaignRequest) validate() string {
	if req.IntervalMinutes < 1 {
		return "interval_too_small"
	}
	if len(req.Platforms) == 0 {
		return "missing_platforms"
	}
	for _, p := range req.Platforms {
		if !supportedPlatforms[p] {
			return "unsupported_platform"
		}
	}
	return ""
}

func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if req.Language == "" {
		req.Language = "en"
	}
	if req.Template == "" {
		req.Template = "classic"
	}
	enabled := true
	if req.IsEnabled != nil {
		enabled = *req.IsEnabled
	}

	var c models.AutoPostCampaign
	var platforms pq.StringArray
	var last sql.NullTime
	err := h.db.QueryRow(`
		INSERT INTO public.auto_post_campaigns
		  (id, user_id, is_enabled, interval_minutes, platforms, language, template, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, user_id, is_enabled, interval_minutes, platforms, language, template, last_post_time, created_at, updated_at
	`, randHex(16), req.UserID, enabled, req.IntervalMinutes, pq.Array(req.Platforms), req.Language, req.Template).
		Scan(&c.ID, &c.UserID, &c.IsEnabled, &c.IntervalMinutes, &platforms, &c.Language, &c.Template, &last, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	c.Platforms = platforms
	if last.Valid {
		t := last.Time
		c.LastPostTime = &t
	}

	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) GetUserCampaigns(w http.ResponseWriter, r *http.Request) {
	userID := pathVar(r, "userId")

	rows, err := h.db.Query(`
		SELECT id, user_id, is_enabled, interval_minutes, COALESCE(platforms, ARRAY[]::text[]),
		       COALESCE(language, 'en'), COALESCE(template, 'classic'), last_post_time, created_at, updated_at
		FROM public.auto_post_campaigns
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	campaigns := []models.AutoPostCampaign{}
	for rows.Next() {
		var c models.AutoPostCampaign
		var platforms pq.StringArray
		var last sql.NullTime
		if err := rows.Scan(&c.ID, &c.UserID, &c.IsEnabled, &c.IntervalMinutes, &platforms,
			&c.Language, &c.Template, &last, &c.CreatedAt, &c.UpdatedAt); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		c.Platforms = platforms
		if last.Valid {
			t := last.Time
			c.LastPostTime = &t
		}
		campaigns = append(campaigns, c)
	}

	writeJSON(w, http.StatusOK, campaigns)
}

func (h *Handler) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")

	var req campaignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	enabled := true
	if req.IsEnabled != nil {
		enabled = *req.IsEnabled
	}

	var c models.AutoPostCampaign
	var platforms pq.StringArray
	var last sql.NullTime
	err := h.db.QueryRow(`
		UPDATE public.auto_post_campaigns
		   SET is_enabled = $2,
		       interval_minutes = $3,
		       platforms = $4,
		       language = COALESCE(NULLIF($5, ''), language),
		       template = COALESCE(NULLIF($6, ''), template),
		       updated_at = NOW()
		 WHERE id = $1
		RETURNING id, user_id, is_enabled, interval_minutes, platforms, language, template, last_post_time, created_at, updated_at
	`, id, enabled, req.IntervalMinutes, pq.Array(req.Platforms), req.Language, req.Template).
		Scan(&c.ID, &c.UserID, &c.IsEnabled, &c.IntervalMinutes, &platforms, &c.Language, &c.Template, &last, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Campaign not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	c.Platforms = platforms
	if last.Valid {
		t := last.Time
		c.LastPostTime = &t
	}

	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")

	res, err := h.db.Exec(`DELETE FROM public.auto_post_campaigns WHERE id = $1`, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeError(w, http.StatusNotFound, "Campaign not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type scheduledPostRequest struct {
	UserID      string   `json:"userId"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	PostType    string   `json:"postType"`
	Platforms   []string `json:"platforms"`
	Hashtags    []string `json:"hashtags"`
	MediaFiles  []string `json:"mediaFiles"`
	Status      string   `json:"status"`
	ScheduledAt string   `json:"scheduledAt"`
}

func (h *Handler) CreateScheduledPost(w http.ResponseWriter, r *http.Request) {
	var req scheduledPostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if strings.TrimSpace(req.Content) == "" && strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "empty_content")
		return
	}
	for _, p := range req.Platforms {
		if !supportedPlatforms[p] {
			writeError(w, http.StatusBadRequest, "unsupported_platform")
			return
		}
	}

	status := req.Status
	if status == "" {
		status = models.PostStatusScheduled
	}
	if status != models.PostStatusDraft && status != models.PostStatusScheduled {
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}

	// A scheduled post must carry a well-formed schedule time. Drafts may omit it.
	var scheduledAt *time.Time
	if strings.TrimSpace(req.ScheduledAt) != "" {
		t, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule_time")
			return
		}
		scheduledAt = &t
	} else if status == models.PostStatusScheduled {
		writeError(w, http.StatusBadRequest, "missing_schedule_time")
		return
	}

	if req.PostType == "" {
		req.PostType = "quote"
	}

	var p models.ScheduledPost
	var platforms, hashtags, media pq.StringArray
	var schedAt, pubAt sql.NullTime
	err := h.db.QueryRow(`
		INSERT INTO public.scheduled_posts
		  (id, user_id, title, content, post_type, platforms, hashtags, media_files, status, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING id, user_id, COALESCE(title, ''), COALESCE(content, ''), post_type,
		          COALESCE(platforms, ARRAY[]::text[]), COALESCE(hashtags, ARRAY[]::text[]),
		          COALESCE(media_files, ARRAY[]::text[]), status, scheduled_at, published_at, created_at, updated_at
	`, randHex(16), req.UserID, req.Title, req.Content, req.PostType,
		pq.Array(req.Platforms), pq.Array(req.Hashtags), pq.Array(req.MediaFiles), status, scheduledAt).
		Scan(&p.ID, &p.UserID, &p.Title, &p.Content, &p.PostType, &platforms, &hashtags, &media,
			&p.Status, &schedAt, &pubAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	p.Platforms = platforms
	p.Hashtags = hashtags
	p.MediaFiles = media
	if schedAt.Valid {
		t := schedAt.Time
		p.ScheduledAt = &t
	}
	if pubAt.Valid {
		t := pubAt.Time
		p.PublishedAt = &t
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) ListScheduledPosts(w http.ResponseWriter, r *http.Request) {
	userID := pathVar(r, "userId")
	limit := parseLimit(r.URL.Query().Get("limit"), 50, 200)

	query := `
		SELECT id, user_id, COALESCE(title, ''), COALESCE(content, ''), post_type,
		       COALESCE(platforms, ARRAY[]::text[]), COALESCE(hashtags, ARRAY[]::text[]),
		       COALESCE(media_files, ARRAY[]::text[]), status,
		       COALESCE(published_platforms, ARRAY[]::text[]), failure_reason,
		       scheduled_at, published_at, created_at, updated_at
		FROM public.scheduled_posts
		WHERE user_id = $1`
	args := []interface{}{userID}
	if status := r.URL.Query().Get("status"); status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := h.db.Query(query, args...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	posts := []models.ScheduledPost{}
	for rows.Next() {
		p, err := scanScheduledPost(rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		posts = append(posts, p)
	}

	writeJSON(w, http.StatusOK, posts)
}

func (h *Handler) GetScheduledPost(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")

	row := h.db.QueryRow(`
		SELECT id, user_id, COALESCE(title, ''), COALESCE(content, ''), post_type,
		       COALESCE(platforms, ARRAY[]::text[]), COALESCE(hashtags, ARRAY[]::text[]),
		       COALESCE(media_files, ARRAY[]::text[]), status,
		       COALESCE(published_platforms, ARRAY[]::text[]), failure_reason,
		       scheduled_at, published_at, created_at, updated_at
		FROM public.scheduled_posts
		WHERE id = $1
	`, id)

	p, err := scanScheduledPost(row)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// UpdateScheduledPost edits a pending post. Published, failed and cancelled
// posts are terminal and reject edits.
func (h *Handler) UpdateScheduledPost(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")

	var req scheduledPostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, p := range req.Platforms {
		if !supportedPlatforms[p] {
			writeError(w, http.StatusBadRequest, "unsupported_platform")
			return
		}
	}

	var scheduledAt *time.Time
	if strings.TrimSpace(req.ScheduledAt) != "" {
		t, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule_time")
			return
		}
		scheduledAt = &t
	}

	res, err := h.db.Exec(`
		UPDATE public.scheduled_posts
		   SET title = $2,
		       content = $3,
		       platforms = $4,
		       hashtags = $5,
		       media_files = $6,
		       scheduled_at = COALESCE($7, scheduled_at),
		       updated_at = NOW()
		 WHERE id = $1 AND status IN ('draft', 'scheduled')
	`, id, req.Title, req.Content, pq.Array(req.Platforms), pq.Array(req.Hashtags), pq.Array(req.MediaFiles), scheduledAt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeError(w, http.StatusConflict, "post_not_editable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// CancelScheduledPost moves a pending post to the terminal cancelled state.
// The sweep never picks up cancelled posts.
func (h *Handler) CancelScheduledPost(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")

	res, err := h.db.Exec(`
		UPDATE public.scheduled_posts
		   SET status = 'cancelled', updated_at = NOW()
		 WHERE id = $1 AND status IN ('draft', 'scheduled')
	`, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeError(w, http.StatusConflict, "post_not_cancellable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": models.PostStatusCancelled})
}

type platformMetrics struct {
	Platform  string  `json:"platform"`
	Attempts  int     `json:"attempts"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	OKRate    float64 `json:"okRate"`
}

// GetPlatformMetrics summarizes publish outcomes per platform from the
// post_results bookkeeping written by the runners.
func (h *Handler) GetPlatformMetrics(w http.ResponseWriter, r *http.Request) {
	userID := pathVar(r, "userId")

	rows, err := h.db.Query(`
		SELECT platform,
		       COUNT(*) AS attempts,
		       COUNT(*) FILTER (WHERE ok) AS succeeded
		FROM public.post_results
		WHERE user_id = $1
		GROUP BY platform
		ORDER BY platform ASC
	`, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	metrics := []platformMetrics{}
	for rows.Next() {
		var m platformMetrics
		if err := rows.Scan(&m.Platform, &m.Attempts, &m.Succeeded); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		m.Failed = m.Attempts - m.Succeeded
		if m.Attempts > 0 {
			m.OKRate = float64(m.Succeeded) / float64(m.Attempts)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, metrics)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanScheduledPost(row rowScanner) (models.ScheduledPost, error) {
	var p models.ScheduledPost
	var platforms, hashtags, media, published pq.StringArray
	var failureReason sql.NullString
	var schedAt, pubAt sql.NullTime
	err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Content, &p.PostType, &platforms, &hashtags, &media,
		&p.Status, &published, &failureReason, &schedAt, &pubAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.Platforms = platforms
	p.Hashtags = hashtags
	p.MediaFiles = media
	p.PublishedPlatforms = published
	if failureReason.Valid {
		p.FailureReason = &failureReason.String
	}
	if schedAt.Valid {
		t := schedAt.Time
		p.ScheduledAt = &t
	}
	if pubAt.Valid {
		t := pubAt.Time
		p.PublishedAt = &t
	}
	return p, nil
}

func randHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b)
}

func parseLimit(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
