package api

import (
	"context"
	"net/http"
	"strings"
)

// HasRefunds reports whether the user has any refund records.
func (c *Client) HasRefunds(ctx context.Context, userID string) (bool, error) {
	var resp struct {
		Exists bool `json:"exists"`
	}
	path := strings.ReplaceAll(c.refundPath, "{userId}", escape(userID))
	if err := c.do(ctx, http.MethodGet, path, withAuth, nil, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}
