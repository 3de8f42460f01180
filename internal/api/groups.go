package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tOgg1/chatsync/internal/models"
)

// UserGroups lists the groups of a user with per-group unread counts.
func (c *Client) UserGroups(ctx context.Context, userID string) ([]models.ChatGroup, error) {
	var resp struct {
		Groups []models.ChatGroup `json:"groups"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/chat-groups/user/"+escape(userID), noAuth, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// Group fetches one group.
func (c *Client) Group(ctx context.Context, groupID string) (models.ChatGroup, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/chat-groups/"+escape(groupID), noAuth, nil, &raw); err != nil {
		return models.ChatGroup{}, err
	}
	var group models.ChatGroup
	if err := unwrap(raw, "group", &group); err != nil {
		return models.ChatGroup{}, fmt.Errorf("decode group %s: %w", groupID, err)
	}
	return group, nil
}

// GroupMembers lists the members of a group.
func (c *Client) GroupMembers(ctx context.Context, groupID string) ([]models.User, error) {
	var resp struct {
		Members []models.User `json:"members"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/chat-groups/"+escape(groupID)+"/members", noAuth, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Members, nil
}

type createGroupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Members     []string `json:"members"`
	CreatedBy   string   `json:"createdBy,omitempty"`
}

// CreateGroup validates the draft and creates the group.
func (c *Client) CreateGroup(ctx context.Context, draft models.GroupDraft) (models.ChatGroup, error) {
	if err := draft.Validate(); err != nil {
		return models.ChatGroup{}, err
	}
	body := createGroupRequest{
		Name:        draft.Name,
		Description: draft.Description,
		Members:     draft.Members,
		CreatedBy:   draft.CreatedBy,
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/chat-groups", noAuth, body, &raw); err != nil {
		return models.ChatGroup{}, err
	}
	var group models.ChatGroup
	if err := unwrap(raw, "group", &group); err != nil {
		return models.ChatGroup{}, fmt.Errorf("decode created group: %w", err)
	}
	return group, nil
}

// DeleteGroup removes a group.
func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	return c.do(ctx, http.MethodDelete, "/api/chat-groups/"+escape(groupID), noAuth, nil, nil)
}

// AddGroupMember adds a member to a group.
func (c *Client) AddGroupMember(ctx context.Context, groupID, memberID string) error {
	return c.do(ctx, http.MethodPut, "/api/chat-groups/"+escape(groupID)+"/members/add/"+escape(memberID), noAuth, nil, nil)
}

// RemoveGroupMember removes a member from a group.
func (c *Client) RemoveGroupMember(ctx context.Context, groupID, memberID string) error {
	return c.do(ctx, http.MethodPut, "/api/chat-groups/"+escape(groupID)+"/members/remove/"+escape(memberID), noAuth, nil, nil)
}
