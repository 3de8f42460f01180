package api

import (
	"context"
	"fmt"

	"github.com/tOgg1/chatsync/internal/models"
)

// ThreadAPI addresses group and direct endpoints by ThreadRef.
type ThreadAPI struct {
	Client *Client
	// SenderID is sent as the sender of group messages.
	SenderID string
}

// Messages lists the messages of a thread.
func (t ThreadAPI) Messages(ctx context.Context, ref models.ThreadRef) ([]models.Message, error) {
	switch ref.Kind {
	case models.ThreadKindGroup:
		return t.Client.GroupMessages(ctx, ref.ID)
	case models.ThreadKindDirect:
		return t.Client.DirectMessages(ctx, ref.ID)
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidThreadKind, ref.Kind)
	}
}

// Send posts a message to a thread.
func (t ThreadAPI) Send(ctx context.Context, ref models.ThreadRef, text string) (models.Message, error) {
	switch ref.Kind {
	case models.ThreadKindGroup:
		return t.Client.SendGroup(ctx, ref.ID, t.SenderID, text)
	case models.ThreadKindDirect:
		return t.Client.SendDirect(ctx, ref.ID, text)
	default:
		return models.Message{}, fmt.Errorf("%w: %q", models.ErrInvalidThreadKind, ref.Kind)
	}
}

// ReadAll marks a thread read.
func (t ThreadAPI) ReadAll(ctx context.Context, ref models.ThreadRef) error {
	switch ref.Kind {
	case models.ThreadKindGroup:
		return t.Client.ReadAllGroup(ctx, ref.ID)
	case models.ThreadKindDirect:
		return t.Client.ReadAllDirect(ctx, ref.ID)
	default:
		return fmt.Errorf("%w: %q", models.ErrInvalidThreadKind, ref.Kind)
	}
}

// HasNew reports whether a group holds more than knownCount messages.
func (t ThreadAPI) HasNew(ctx context.Context, ref models.ThreadRef, knownCount int) (bool, error) {
	if ref.Kind != models.ThreadKindGroup {
		return false, fmt.Errorf("%w: check endpoint serves groups only", models.ErrInvalidThreadKind)
	}
	return t.Client.CheckGroupMessages(ctx, ref.ID, knownCount)
}
