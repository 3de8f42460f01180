package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tOgg1/chatsync/internal/models"
)

// DirectThreads lists the direct threads of a user with unread counts.
func (c *Client) DirectThreads(ctx context.Context, userID string) ([]models.DirectThread, error) {
	var resp struct {
		Threads []models.DirectThread `json:"threads"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/direct-chats/user/"+escape(userID), withAuth, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Threads, nil
}

// StartDirect finds or creates the direct thread with otherUserID.
func (c *Client) StartDirect(ctx context.Context, otherUserID string) (models.DirectThread, error) {
	body := map[string]string{"otherUserId": otherUserID}
	var resp struct {
		Thread models.DirectThread `json:"thread"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/direct-chats/start", withAuth, body, &resp); err != nil {
		return models.DirectThread{}, err
	}
	if resp.Thread.ID == "" {
		return models.DirectThread{}, fmt.Errorf("start direct chat with %s: empty thread in response", otherUserID)
	}
	return resp.Thread, nil
}

// DirectMessages lists the messages of a direct thread.
func (c *Client) DirectMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/direct-chats/"+escape(threadID)+"/messages", withAuth, nil, &raw); err != nil {
		return nil, err
	}
	var msgs []models.Message
	if err := unwrap(raw, "messages", &msgs); err != nil {
		return nil, fmt.Errorf("decode direct messages %s: %w", threadID, err)
	}
	return msgs, nil
}

// SendDirect posts a message to a direct thread.
func (c *Client) SendDirect(ctx context.Context, threadID, text string) (models.Message, error) {
	body := map[string]string{"text": text}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/direct-chats/"+escape(threadID)+"/messages", withAuth, body, &raw); err != nil {
		return models.Message{}, err
	}
	var msg models.Message
	if err := unwrap(raw, "message", &msg); err != nil {
		return models.Message{}, fmt.Errorf("decode sent direct message: %w", err)
	}
	return msg, nil
}

// ReadAllDirect marks every message of a direct thread read.
func (c *Client) ReadAllDirect(ctx context.Context, threadID string) error {
	return c.do(ctx, http.MethodPut, "/api/direct-chats/"+escape(threadID)+"/read-all", withAuth, nil, nil)
}
