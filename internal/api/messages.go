package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tOgg1/chatsync/internal/models"
)

// GroupMessages lists the messages of a group.
func (c *Client) GroupMessages(ctx context.Context, groupID string) ([]models.Message, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/messages/"+escape(groupID), withAuth, nil, &raw); err != nil {
		return nil, err
	}
	var msgs []models.Message
	if err := unwrap(raw, "messages", &msgs); err != nil {
		return nil, fmt.Errorf("decode group messages %s: %w", groupID, err)
	}
	return msgs, nil
}

type sendGroupRequest struct {
	ChatGroup string `json:"chatGroup"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
}

// SendGroup posts a message to a group on behalf of senderID.
func (c *Client) SendGroup(ctx context.Context, groupID, senderID, text string) (models.Message, error) {
	body := sendGroupRequest{ChatGroup: groupID, Sender: senderID, Text: text}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/messages", withAuth, body, &raw); err != nil {
		return models.Message{}, err
	}
	var msg models.Message
	if err := unwrap(raw, "message", &msg); err != nil {
		return models.Message{}, fmt.Errorf("decode sent group message: %w", err)
	}
	return msg, nil
}

// ReadAllGroup marks every message of a group read for the caller.
func (c *Client) ReadAllGroup(ctx context.Context, groupID string) error {
	return c.do(ctx, http.MethodPut, "/api/messages/"+escape(groupID)+"/readAll", withAuth, nil, nil)
}

// CheckGroupMessages reports whether the group holds more than knownCount
// messages.
func (c *Client) CheckGroupMessages(ctx context.Context, groupID string, knownCount int) (bool, error) {
	var resp struct {
		HasNew bool `json:"hasNew"`
	}
	path := "/api/messages/" + escape(groupID) + "/check/" + strconv.Itoa(knownCount)
	if err := c.do(ctx, http.MethodGet, path, withAuth, nil, &resp); err != nil {
		return false, err
	}
	return resp.HasNew, nil
}
