package quotes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetch_BuiltinWhenNoAPIConfigured(t *testing.T) {
	p := &Provider{}
	q, err := p.Fetch(context.Background(), "en")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if q.Text == "" || q.Author == "" {
		t.Fatalf("builtin quote incomplete: %+v", q)
	}
}

func TestFetch_ZenShapedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"q":"Stay hungry.","a":"Steve Jobs"}]`)
	}))
	defer srv.Close()

	p := &Provider{APIURL: srv.URL}
	q, err := p.Fetch(context.Background(), "")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if q.Text != "Stay hungry." || q.Author != "Steve Jobs" {
		t.Fatalf("unexpected quote: %+v", q)
	}
}

func TestFetch_ObjectShapedResponseAndLangParam(t *testing.T) {
	gotLang := ""
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLang = r.URL.Query().Get("lang")
		fmt.Fprint(w, `{"content":"Less, but better.","author":"Dieter Rams"}`)
	}))
	defer srv.Close()

	p := &Provider{APIURL: srv.URL}
	q, err := p.Fetch(context.Background(), "de")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotLang != "de" {
		t.Fatalf("lang param = %q", gotLang)
	}
	if q.Text != "Less, but better." {
		t.Fatalf("unexpected quote: %+v", q)
	}
}

func TestFetch_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := &Provider{APIURL: srv.URL}
	if _, err := p.Fetch(context.Background(), ""); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestParseQuote_UnrecognizedShape(t *testing.T) {
	if _, err := parseQuote([]byte(`{"weird":true}`)); err == nil {
		t.Fatal("expected parse error")
	}
}
