package social

import (
	"context"
	"fmt"
	"net/url"
)

// PublishFacebookPhoto posts an image URL with a caption to a page's photos
// endpoint using the page access token. Single-step: the response carries the
// photo id and the feed post id the canonical URL is built from.
func (c *Client) PublishFacebookPhoto(ctx context.Context, pageID, pageToken, caption, imageURL string) (PublishResult, error) {
	form := url.Values{}
	form.Set("url", imageURL)
	form.Set("access_token", pageToken)
	if caption != "" {
		form.Set("message", caption)
	}

	endpoint := fmt.Sprintf("%s/%s/photos", c.baseURL(), url.PathEscape(pageID))
	obj, err := c.postForm(ctx, "facebook", endpoint, form)
	if err != nil {
		return PublishResult{}, err
	}

	postID := jsonString(obj, "post_id")
	if postID == "" {
		postID = jsonString(obj, "id")
	}
	if postID == "" {
		return PublishResult{}, fmt.Errorf("facebook: missing post id in response")
	}
	return PublishResult{
		Platform: "facebook",
		PostID:   postID,
		PostURL:  fmt.Sprintf("https://www.facebook.com/%s", postID),
	}, nil
}

// LookupFacebookPage fetches a page's name using the page token. Used by the
// connection CRUD surface to validate tokens before saving them.
func (c *Client) LookupFacebookPage(ctx context.Context, pageID, pageToken string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=name&access_token=%s",
		c.baseURL(), url.PathEscape(pageID), url.QueryEscape(pageToken))
	obj, err := c.getJSON(ctx, "facebook", endpoint)
	if err != nil {
		return "", err
	}
	name := jsonString(obj, "name")
	if name == "" {
		return "", fmt.Errorf("facebook: missing page name in response")
	}
	return name, nil
}
