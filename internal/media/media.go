// Package media uploads rendered quote images to the hosting CDN and hands
// back the durable HTTPS URL the platform publishes reference.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/QuoteArtHQ/quoteart-backend/internal/retry"
)

// quote images live under one logical folder on the CDN
const uploadFolder = "quoteart"

// UploadError is the typed failure for CDN uploads. 401/403/404 responses are
// not retryable; everything else is transient.
type UploadError struct {
	Status  int
	Message string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("media upload failed status=%d: %s", e.Status, e.Message)
}

func (e *UploadError) RetryKind() retry.Kind {
	switch e.Status {
	case 401, 403, 404:
		return retry.KindNotRetryable
	default:
		return retry.KindTransient
	}
}

type Uploader struct {
	// UploadURL is the unsigned upload endpoint, e.g.
	// https://api.cloudinary.com/v1_1/<cloud>/image/upload
	UploadURL    string
	UploadPreset string
	HTTPClient   *http.Client
}

func NewUploaderFromEnv() *Uploader {
	return &Uploader{
		UploadURL:    os.Getenv("MEDIA_UPLOAD_URL"),
		UploadPreset: os.Getenv("MEDIA_UPLOAD_PRESET"),
		HTTPClient:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (u *Uploader) client() *http.Client {
	if u.HTTPClient == nil {
		return &http.Client{Timeout: 60 * time.Second}
	}
	return u.HTTPClient
}

// Upload accepts a data URL, a remote HTTPS URL, or (via UploadBytes) raw
// bytes, and returns the hosted secure URL.
func (u *Uploader) Upload(ctx context.Context, src string) (string, error) {
	src = strings.TrimSpace(src)
	switch {
	case strings.HasPrefix(src, "data:"):
		data, filename, err := decodeDataURL(src)
		if err != nil {
			return "", retry.Validation(err)
		}
		return u.UploadBytes(ctx, data, filename)
	case strings.HasPrefix(src, "https://"), strings.HasPrefix(src, "http://"):
		data, err := u.fetchRemote(ctx, src)
		if err != nil {
			return "", err
		}
		return u.UploadBytes(ctx, data, "remote.png")
	default:
		return "", retry.Validation(fmt.Errorf("media: unsupported source %q", truncate(src, 60)))
	}
}

// UploadBytes pushes raw image bytes to the CDN under the quoteart folder.
func (u *Uploader) UploadBytes(ctx context.Context, data []byte, filename string) (string, error) {
	if strings.TrimSpace(u.UploadURL) == "" {
		return "", retry.Validation(fmt.Errorf("media: MEDIA_UPLOAD_URL is not configured"))
	}
	if len(data) == 0 {
		return "", retry.Validation(fmt.Errorf("media: empty payload"))
	}
	if filename == "" {
		filename = "quote.png"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if u.UploadPreset != "" {
		_ = w.WriteField("upload_preset", u.UploadPreset)
	}
	_ = w.WriteField("folder", uploadFolder)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		_ = w.Close()
		return "", err
	}
	_, _ = fw.Write(data)
	_ = w.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", u.UploadURL, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	res, err := u.client().Do(req)
	if err != nil {
		return "", err
	}
	b, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	_ = res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", &UploadError{Status: res.StatusCode, Message: truncate(string(b), 400)}
	}

	var obj struct {
		SecureURL string `json:"secure_url"`
		URL       string `json:"url"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return "", fmt.Errorf("media: bad upload response: %w", err)
	}
	if obj.SecureURL != "" {
		return obj.SecureURL, nil
	}
	if obj.URL != "" {
		return obj.URL, nil
	}
	return "", fmt.Errorf("media: upload response missing secure_url")
}

func (u *Uploader) fetchRemote(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", src, nil)
	if err != nil {
		return nil, err
	}
	res, err := u.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &UploadError{Status: res.StatusCode, Message: "fetch remote media failed"}
	}
	return io.ReadAll(io.LimitReader(res.Body, 10<<20))
}

// decodeDataURL parses data:<mime>;base64,<payload> into bytes and a filename
// with an extension matching the mime type.
func decodeDataURL(src string) ([]byte, string, error) {
	comma := strings.Index(src, ",")
	if comma < 0 {
		return nil, "", fmt.Errorf("media: malformed data url")
	}
	meta, payload := src[len("data:"):comma], src[comma+1:]
	if !strings.Contains(meta, "base64") {
		return nil, "", fmt.Errorf("media: data url must be base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("media: decode data url: %w", err)
	}
	ext := "png"
	if i := strings.Index(meta, "/"); i >= 0 {
		if j := strings.IndexAny(meta[i+1:], ";"); j >= 0 {
			ext = meta[i+1 : i+1+j]
		}
	}
	return data, "quote." + ext, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
