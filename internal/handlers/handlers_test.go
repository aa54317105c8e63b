package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
)

func TestCreateCampaign_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"interval zero", `{"userId":"u1","interval":0,"platforms":["facebook"]}`, "interval_too_small"},
		{"interval negative", `{"userId":"u1","interval":-5,"platforms":["facebook"]}`, "interval_too_small"},
		{"no platforms", `{"userId":"u1","interval":60,"platforms":[]}`, "missing_platforms"},
		{"unknown platform", `{"userId":"u1","interval":60,"platforms":["myspace"]}`, "unsupported_platform"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := New(nil, nil)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/campaigns", bytes.NewBufferString(tc.body))
			h.CreateCampaign(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d body=%q", rr.Code, rr.Body.String())
			}
			if got := rr.Body.String(); !bytes.Contains([]byte(got), []byte(tc.want)) {
				t.Fatalf("expected body to mention %q, got %q", tc.want, got)
			}
		})
	}
}

func TestCreateCampaign_Inserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()
	h := New(db, nil)

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO public\.auto_post_campaigns`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "is_enabled", "interval_minutes", "platforms",
			"language", "template", "last_post_time", "created_at", "updated_at",
		}).AddRow("camp1", "u1", true, 60, "{facebook,instagram}", "en", "classic", nil, now, now))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/campaigns",
		bytes.NewBufferString(`{"userId":"u1","interval":60,"platforms":["facebook","instagram"]}`))
	h.CreateCampaign(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%q", rr.Code, rr.Body.String())
	}

	var got struct {
		ID              string   `json:"id"`
		IntervalMinutes int      `json:"interval"`
		Platforms       []string `json:"platforms"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != "camp1" || got.IntervalMinutes != 60 || len(got.Platforms) != 2 {
		t.Fatalf("unexpected response: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateScheduledPost_ScheduleTimeValidation(t *testing.T) {
	t.Run("missing for scheduled", func(t *testing.T) {
		h := New(nil, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/scheduled-posts",
			bytes.NewBufferString(`{"userId":"u1","content":"hello","platforms":["facebook"]}`))
		h.CreateScheduledPost(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 got %d body=%q", rr.Code, rr.Body.String())
		}
		if !bytes.Contains(rr.Body.Bytes(), []byte("missing_schedule_time")) {
			t.Fatalf("expected missing_schedule_time, got %q", rr.Body.String())
		}
	})

	t.Run("malformed time", func(t *testing.T) {
		h := New(nil, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/scheduled-posts",
			bytes.NewBufferString(`{"userId":"u1","content":"hello","platforms":["facebook"],"scheduledAt":"next tuesday"}`))
		h.CreateScheduledPost(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 got %d body=%q", rr.Code, rr.Body.String())
		}
		if !bytes.Contains(rr.Body.Bytes(), []byte("invalid_schedule_time")) {
			t.Fatalf("expected invalid_schedule_time, got %q", rr.Body.String())
		}
	})

	t.Run("draft without time is fine", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock.New: %v", err)
		}
		defer func() { _ = db.Close() }()
		h := New(db, nil)

		now := time.Now()
		mock.ExpectQuery(`INSERT INTO public\.scheduled_posts`).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "user_id", "title", "content", "post_type", "platforms", "hashtags",
				"media_files", "status", "scheduled_at", "published_at", "created_at", "updated_at",
			}).AddRow("post1", "u1", "", "hello", "quote", "{facebook}", "{}", "{}", "draft", nil, nil, now, now))

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/scheduled-posts",
			bytes.NewBufferString(`{"userId":"u1","content":"hello","platforms":["facebook"],"status":"draft"}`))
		h.CreateScheduledPost(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d body=%q", rr.Code, rr.Body.String())
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("expectations: %v", err)
		}
	})

	t.Run("empty content", func(t *testing.T) {
		h := New(nil, nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/scheduled-posts",
			bytes.NewBufferString(`{"userId":"u1","platforms":["facebook"],"scheduledAt":"2030-01-01T10:00:00Z"}`))
		h.CreateScheduledPost(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 got %d body=%q", rr.Code, rr.Body.String())
		}
	})
}

func TestCancelScheduledPost(t *testing.T) {
	t.Run("pending post cancels", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock.New: %v", err)
		}
		defer func() { _ = db.Close() }()
		h := New(db, nil)

		mock.ExpectExec(`UPDATE public\.scheduled_posts`).
			WithArgs("post1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/scheduled-posts/post1/cancel", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "post1"})
		h.CancelScheduledPost(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d body=%q", rr.Code, rr.Body.String())
		}
		if !bytes.Contains(rr.Body.Bytes(), []byte("cancelled")) {
			t.Fatalf("expected cancelled status, got %q", rr.Body.String())
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("expectations: %v", err)
		}
	})

	t.Run("terminal post rejects cancel", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock.New: %v", err)
		}
		defer func() { _ = db.Close() }()
		h := New(db, nil)

		mock.ExpectExec(`UPDATE public\.scheduled_posts`).
			WithArgs("post2").
			WillReturnResult(sqlmock.NewResult(0, 0))

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/scheduled-posts/post2/cancel", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "post2"})
		h.CancelScheduledPost(rr, req)
		if rr.Code != http.StatusConflict {
			t.Fatalf("expected 409 got %d body=%q", rr.Code, rr.Body.String())
		}
	})
}

func TestCreateSocialConnection_UnsupportedPlatform(t *testing.T) {
	h := New(nil, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/social-connections",
		bytes.NewBufferString(`{"userId":"u1","platform":"tiktok","accessToken":"tok"}`))
	h.CreateSocialConnection(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestGetPlatformMetrics(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()
	h := New(db, nil)

	mock.ExpectQuery(`FROM public\.post_results`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"platform", "attempts", "succeeded"}).
			AddRow("facebook", 10, 8).
			AddRow("instagram", 4, 1))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/metrics/platforms/user/u1", nil)
	req = mux.SetURLVars(req, map[string]string{"userId": "u1"})
	h.GetPlatformMetrics(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%q", rr.Code, rr.Body.String())
	}

	var got []platformMetrics
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 platforms, got %d", len(got))
	}
	if got[0].Platform != "facebook" || got[0].Failed != 2 || got[0].OKRate != 0.8 {
		t.Fatalf("unexpected facebook metrics: %+v", got[0])
	}
	if got[1].Platform != "instagram" || got[1].Failed != 3 {
		t.Fatalf("unexpected instagram metrics: %+v", got[1])
	}
}

func TestGetUser_NotFoundAndDBError(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock.New: %v", err)
		}
		defer func() { _ = db.Close() }()
		h := New(db, nil)

		mock.ExpectQuery(`FROM public\.users WHERE id = \$1`).
			WithArgs("u404").
			WillReturnError(sql.ErrNoRows)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/users/u404", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "u404"})
		h.GetUser(rr, req)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404 got %d body=%q", rr.Code, rr.Body.String())
		}
	})

	t.Run("db error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock.New: %v", err)
		}
		defer func() { _ = db.Close() }()
		h := New(db, nil)

		mock.ExpectQuery(`FROM public\.users WHERE id = \$1`).
			WithArgs("u1").
			WillReturnError(sql.ErrConnDone)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/users/u1", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "u1"})
		h.GetUser(rr, req)
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500 got %d body=%q", rr.Code, rr.Body.String())
		}
	})
}
