package social

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/QuoteArtHQ/quoteart-backend/internal/retry"
)

const (
	containerPollAttempts = 10
	containerPollSpacing  = 2 * time.Second
)

// PublishInstagramImage runs the two-step container publish flow: create a
// media container referencing an HTTPS image URL, poll its status_code until
// FINISHED, then publish the container.
//
// Publishing before the container reports FINISHED triggers OAuthException
// code=9007 "media is not ready for publishing", hence the poll.
func (c *Client) PublishInstagramImage(ctx context.Context, igAccountID, accessToken, caption, imageURL string) (PublishResult, error) {
	form := url.Values{}
	form.Set("image_url", imageURL)
	form.Set("caption", caption)
	form.Set("access_token", accessToken)

	endpoint := fmt.Sprintf("%s/%s/media", c.baseURL(), url.PathEscape(igAccountID))
	obj, err := c.postForm(ctx, "instagram", endpoint, form)
	if err != nil {
		return PublishResult{}, err
	}
	containerID := jsonString(obj, "id")
	if containerID == "" {
		return PublishResult{}, fmt.Errorf("instagram: missing container id in response")
	}

	if err := c.waitForContainer(ctx, containerID, accessToken); err != nil {
		return PublishResult{}, err
	}

	form = url.Values{}
	form.Set("creation_id", containerID)
	form.Set("access_token", accessToken)
	endpoint = fmt.Sprintf("%s/%s/media_publish", c.baseURL(), url.PathEscape(igAccountID))
	obj, err = c.postForm(ctx, "instagram", endpoint, form)
	if err != nil {
		return PublishResult{}, err
	}
	mediaID := jsonString(obj, "id")
	if mediaID == "" {
		return PublishResult{}, fmt.Errorf("instagram: missing media id in publish response")
	}
	return PublishResult{
		Platform: "instagram",
		PostID:   mediaID,
		PostURL:  fmt.Sprintf("https://www.instagram.com/p/%s", mediaID),
	}, nil
}

// waitForContainer polls the container status a bounded number of times at a
// fixed spacing. The sleep is injected via Client.Sleep for tests.
func (c *Client) waitForContainer(ctx context.Context, containerID, accessToken string) error {
	last := ""
	for i := 0; i < containerPollAttempts; i++ {
		if i > 0 {
			if err := c.sleep(ctx, containerPollSpacing); err != nil {
				return err
			}
		}
		endpoint := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s",
			c.baseURL(), url.PathEscape(containerID), url.QueryEscape(accessToken))
		obj, err := c.getJSON(ctx, "instagram", endpoint)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				if apiErr.Kind == retry.KindNotRetryable {
					return err
				}
				last = fmt.Sprintf("http_%d", apiErr.Status)
				continue
			}
			last = "request_error"
			continue
		}
		last = strings.ToUpper(strings.TrimSpace(jsonString(obj, "status_code")))
		switch last {
		case "FINISHED":
			return nil
		case "ERROR", "EXPIRED":
			return fmt.Errorf("instagram: container entered terminal status %s", last)
		}
	}
	return fmt.Errorf("instagram: container not ready after %d polls (last status %q)", containerPollAttempts, last)
}

// LookupInstagramAccount fetches the username behind a business account id.
func (c *Client) LookupInstagramAccount(ctx context.Context, igAccountID, accessToken string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=username&access_token=%s",
		c.baseURL(), url.PathEscape(igAccountID), url.QueryEscape(accessToken))
	obj, err := c.getJSON(ctx, "instagram", endpoint)
	if err != nil {
		return "", err
	}
	username := jsonString(obj, "username")
	if username == "" {
		return "", fmt.Errorf("instagram: missing username in response")
	}
	return username, nil
}
