// Package models defines the core data types for chatsync.
package models

import (
	"fmt"
	"strings"
	"time"
)

// ThreadKind distinguishes the two message containers.
type ThreadKind string

const (
	ThreadKindGroup  ThreadKind = "group"
	ThreadKindDirect ThreadKind = "direct"
)

// ThreadRef identifies a chat group or a direct thread. It is the tagged
// parent reference of every message.
type ThreadRef struct {
	Kind ThreadKind `json:"kind"`
	ID   string     `json:"id"`
}

// GroupRef returns a reference to a chat group.
func GroupRef(id string) ThreadRef {
	return ThreadRef{Kind: ThreadKindGroup, ID: id}
}

// DirectRef returns a reference to a direct thread.
func DirectRef(id string) ThreadRef {
	return ThreadRef{Kind: ThreadKindDirect, ID: id}
}

// IsZero reports whether the reference is unset.
func (r ThreadRef) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

// Validate checks that the reference names a known kind and a non-empty id.
func (r ThreadRef) Validate() error {
	switch r.Kind {
	case ThreadKindGroup, ThreadKindDirect:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidThreadKind, r.Kind)
	}
	if strings.TrimSpace(r.ID) == "" {
		return ErrMissingThreadID
	}
	return nil
}

// Key returns a stable map key such as "group:abc".
func (r ThreadRef) Key() string {
	return string(r.Kind) + ":" + r.ID
}

func (r ThreadRef) String() string {
	return r.Key()
}

// ParseThreadRef parses the form produced by Key.
func ParseThreadRef(s string) (ThreadRef, error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return ThreadRef{}, fmt.Errorf("invalid thread reference %q (want group:<id> or direct:<id>)", s)
	}
	ref := ThreadRef{Kind: ThreadKind(strings.ToLower(kind)), ID: id}
	if err := ref.Validate(); err != nil {
		return ThreadRef{}, err
	}
	return ref, nil
}

// ChatGroup is a multi-member chat room. UnreadCount is computed by the
// server for the requesting user.
type ChatGroup struct {
	ID                   string    `json:"_id"`
	Name                 string    `json:"name"`
	Description          string    `json:"description,omitempty"`
	Members              []string  `json:"members,omitempty"`
	CreatedBy            string    `json:"createdBy,omitempty"`
	UnreadCount          int       `json:"unreadCount"`
	LastMessage          string    `json:"lastMessage,omitempty"`
	LastMessageTimestamp time.Time `json:"lastMessageTimestamp,omitempty"`
}

// Ref returns the thread reference of the group.
func (g ChatGroup) Ref() ThreadRef {
	return GroupRef(g.ID)
}

// HasMember reports whether userID belongs to the group.
func (g ChatGroup) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// DirectThread is a two-party conversation, created lazily on first contact.
type DirectThread struct {
	ID                   string    `json:"_id"`
	Participants         []UserRef `json:"participants"`
	UnreadCount          int       `json:"unreadCount"`
	LastMessage          string    `json:"lastMessage,omitempty"`
	LastMessageTimestamp time.Time `json:"lastMessageTimestamp,omitempty"`
}

// Ref returns the thread reference of the direct thread.
func (d DirectThread) Ref() ThreadRef {
	return DirectRef(d.ID)
}

// Other returns the participant that is not userID.
func (d DirectThread) Other(userID string) (UserRef, bool) {
	for _, p := range d.Participants {
		if p.ID != userID {
			return p, true
		}
	}
	return UserRef{}, false
}

// Validate enforces the two-participant rule.
func (d DirectThread) Validate() error {
	if len(d.Participants) != 2 {
		return fmt.Errorf("%w: got %d", ErrParticipantCount, len(d.Participants))
	}
	return nil
}

// ThreadSummary is the kind-agnostic view of a group or direct thread used
// by read-state reconciliation and aggregation.
type ThreadSummary struct {
	Ref                  ThreadRef
	Title                string
	UnreadCount          int
	LastMessage          string
	LastMessageTimestamp time.Time
}

// Summary converts the group to a ThreadSummary.
func (g ChatGroup) Summary() ThreadSummary {
	return ThreadSummary{
		Ref:                  g.Ref(),
		Title:                g.Name,
		UnreadCount:          g.UnreadCount,
		LastMessage:          g.LastMessage,
		LastMessageTimestamp: g.LastMessageTimestamp,
	}
}

// Summary converts the thread to a ThreadSummary titled after the other
// participant from selfID's perspective.
func (d DirectThread) Summary(selfID string) ThreadSummary {
	title := d.ID
	if other, ok := d.Other(selfID); ok {
		title = other.DisplayName()
	}
	return ThreadSummary{
		Ref:                  d.Ref(),
		Title:                title,
		UnreadCount:          d.UnreadCount,
		LastMessage:          d.LastMessage,
		LastMessageTimestamp: d.LastMessageTimestamp,
	}
}
