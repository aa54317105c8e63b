package social

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/QuoteArtHQ/quoteart-backend/internal/retry"
	"golang.org/x/time/rate"
)

func fastClient(baseURL string, sleeps *[]time.Duration) *Client {
	c := NewClient()
	c.BaseURL = baseURL
	for _, p := range []string{"facebook", "instagram"} {
		c.limiters[p] = rate.NewLimiter(rate.Inf, 1)
	}
	c.Sleep = func(ctx context.Context, d time.Duration) error {
		if sleeps != nil {
			*sleeps = append(*sleeps, d)
		}
		return nil
	}
	return c
}

func TestPublishFacebookPhoto_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/page1/photos" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.Form.Get("url") == "" || r.Form.Get("access_token") != "tok" {
			t.Fatalf("missing form fields: %v", r.Form)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "ph1", "post_id": "page1_42"})
	}))
	defer srv.Close()

	c := fastClient(srv.URL, nil)
	res, err := c.PublishFacebookPhoto(context.Background(), "page1", "tok", "hello", "https://cdn.test/q.png")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if res.PostID != "page1_42" {
		t.Fatalf("post id = %q", res.PostID)
	}
	if res.PostURL != "https://www.facebook.com/page1_42" {
		t.Fatalf("post url = %q", res.PostURL)
	}
}

func TestPublishFacebookPhoto_GraphErrorMessageAndKind(t *testing.T) {
	cases := []struct {
		status int
		kind   retry.Kind
	}{
		{401, retry.KindNotRetryable},
		{403, retry.KindNotRetryable},
		{404, retry.KindNotRetryable},
		{500, retry.KindTransient},
		{429, retry.KindTransient},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			fmt.Fprint(w, `{"error":{"message":"token has expired","type":"OAuthException","code":190}}`)
		}))
		c := fastClient(srv.URL, nil)
		_, err := c.PublishFacebookPhoto(context.Background(), "page1", "bad", "hello", "https://cdn.test/q.png")
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		apiErr, ok := err.(*APIError)
		if !ok {
			t.Fatalf("status %d: expected *APIError, got %T", tc.status, err)
		}
		if apiErr.Kind != tc.kind {
			t.Fatalf("status %d: kind = %v, want %v", tc.status, apiErr.Kind, tc.kind)
		}
		if apiErr.Message != "token has expired" {
			t.Fatalf("status %d: message = %q", tc.status, apiErr.Message)
		}
		if retry.KindOf(err) != tc.kind {
			t.Fatalf("status %d: KindOf dispatch mismatch", tc.status)
		}
	}
}

func TestPublishInstagramImage_ContainerFlow(t *testing.T) {
	statusPolls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST" && r.URL.Path == "/ig9/media":
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "c77"})
		case r.Method == "GET" && r.URL.Path == "/c77":
			statusPolls++
			st := "IN_PROGRESS"
			if statusPolls >= 3 {
				st = "FINISHED"
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "c77", "status_code": st})
		case r.Method == "POST" && r.URL.Path == "/ig9/media_publish":
			if err := r.ParseForm(); err != nil || r.Form.Get("creation_id") != "c77" {
				t.Fatalf("bad publish form: %v", r.Form)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "m123"})
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	var sleeps []time.Duration
	c := fastClient(srv.URL, &sleeps)
	res, err := c.PublishInstagramImage(context.Background(), "ig9", "tok", "cap", "https://cdn.test/q.png")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if res.PostID != "m123" {
		t.Fatalf("post id = %q", res.PostID)
	}
	if statusPolls != 3 {
		t.Fatalf("expected 3 status polls, got %d", statusPolls)
	}
	// No sleep before the first poll, 2s between the rest.
	if len(sleeps) != 2 {
		t.Fatalf("expected 2 poll waits, got %v", sleeps)
	}
	for _, d := range sleeps {
		if d != containerPollSpacing {
			t.Fatalf("poll spacing = %v, want %v", d, containerPollSpacing)
		}
	}
}

func TestPublishInstagramImage_ContainerNeverFinishes(t *testing.T) {
	statusPolls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST" && r.URL.Path == "/ig9/media":
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "c77"})
		case r.Method == "GET" && r.URL.Path == "/c77":
			statusPolls++
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "c77", "status_code": "IN_PROGRESS"})
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	var sleeps []time.Duration
	c := fastClient(srv.URL, &sleeps)
	_, err := c.PublishInstagramImage(context.Background(), "ig9", "tok", "cap", "https://cdn.test/q.png")
	if err == nil {
		t.Fatal("expected container-not-ready error")
	}
	if statusPolls != containerPollAttempts {
		t.Fatalf("expected %d polls, got %d", containerPollAttempts, statusPolls)
	}
}

func TestPublishInstagramImage_ContainerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST" && r.URL.Path == "/ig9/media":
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "c77"})
		case r.Method == "GET" && r.URL.Path == "/c77":
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "c77", "status_code": "ERROR"})
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := fastClient(srv.URL, nil)
	_, err := c.PublishInstagramImage(context.Background(), "ig9", "tok", "cap", "https://cdn.test/q.png")
	if err == nil {
		t.Fatal("expected terminal container error")
	}
}

func TestLookupFacebookPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "page1", "name": "Quote Art Daily"})
	}))
	defer srv.Close()

	c := fastClient(srv.URL, nil)
	name, err := c.LookupFacebookPage(context.Background(), "page1", "tok")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if name != "Quote Art Daily" {
		t.Fatalf("name = %q", name)
	}
}
