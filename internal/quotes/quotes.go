// Package quotes fetches the quote content a campaign cycle posts. A
// configurable external API is preferred; without one, a built-in rotation
// keeps campaigns producing content.
package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type Quote struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

type Provider struct {
	APIURL     string
	HTTPClient *http.Client
}

func NewProvider() *Provider {
	return &Provider{
		APIURL:     os.Getenv("QUOTES_API_URL"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Fetch returns one quote in the requested language. Failures from the remote
// API surface as plain (transient) errors so call sites can retry-wrap them.
func (p *Provider) Fetch(ctx context.Context, language string) (Quote, error) {
	if strings.TrimSpace(p.APIURL) == "" {
		return builtinQuote(), nil
	}

	endpoint := p.APIURL
	if language != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint += sep + "lang=" + url.QueryEscape(language)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")

	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	res, err := client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	b, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	_ = res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return Quote{}, fmt.Errorf("quotes api status=%d body=%s", res.StatusCode, truncate(string(b), 200))
	}

	q, err := parseQuote(b)
	if err != nil {
		return Quote{}, err
	}
	return q, nil
}

// parseQuote accepts the common quote-API response shapes:
// [{"q":...,"a":...}], {"content":...,"author":...} and {"text":...,"author":...}.
func parseQuote(b []byte) (Quote, error) {
	var arr []struct {
		Q string `json:"q"`
		A string `json:"a"`
	}
	if err := json.Unmarshal(b, &arr); err == nil && len(arr) > 0 && arr[0].Q != "" {
		return Quote{Text: arr[0].Q, Author: arr[0].A}, nil
	}

	var obj struct {
		Text    string `json:"text"`
		Content string `json:"content"`
		Author  string `json:"author"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		text := obj.Text
		if text == "" {
			text = obj.Content
		}
		if text != "" {
			return Quote{Text: text, Author: obj.Author}, nil
		}
	}
	return Quote{}, fmt.Errorf("quotes api: unrecognized response shape: %s", truncate(string(b), 200))
}

var builtinQuotes = []Quote{
	{Text: "The best way to predict the future is to invent it.", Author: "Alan Kay"},
	{Text: "Simplicity is the ultimate sophistication.", Author: "Leonardo da Vinci"},
	{Text: "Whatever you are, be a good one.", Author: "Abraham Lincoln"},
	{Text: "It always seems impossible until it is done.", Author: "Nelson Mandela"},
	{Text: "Well done is better than well said.", Author: "Benjamin Franklin"},
	{Text: "Action is the foundational key to all success.", Author: "Pablo Picasso"},
	{Text: "Quality is not an act, it is a habit.", Author: "Aristotle"},
	{Text: "The journey of a thousand miles begins with a single step.", Author: "Lao Tzu"},
}

func builtinQuote() Quote {
	return builtinQuotes[rand.Intn(len(builtinQuotes))]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
