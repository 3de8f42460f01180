package portal

import (
	"context"

	"github.com/tOgg1/chatsync/internal/api"
	"github.com/tOgg1/chatsync/internal/models"
)

// Backend is the portal API surface the views depend on.
type Backend interface {
	UserGroups(ctx context.Context, userID string) ([]models.ChatGroup, error)
	DirectThreads(ctx context.Context, userID string) ([]models.DirectThread, error)
	StartDirect(ctx context.Context, otherUserID string) (models.DirectThread, error)
	HasRefunds(ctx context.Context, userID string) (bool, error)

	Messages(ctx context.Context, ref models.ThreadRef) ([]models.Message, error)
	Send(ctx context.Context, ref models.ThreadRef, text string) (models.Message, error)
	ReadAll(ctx context.Context, ref models.ThreadRef) error
	HasNew(ctx context.Context, ref models.ThreadRef, knownCount int) (bool, error)
}

type clientBackend struct {
	client  *api.Client
	threads api.ThreadAPI
}

// NewBackend adapts an API client. senderID is sent as the sender of group
// messages.
func NewBackend(client *api.Client, senderID string) Backend {
	return &clientBackend{
		client:  client,
		threads: api.ThreadAPI{Client: client, SenderID: senderID},
	}
}

func (b *clientBackend) UserGroups(ctx context.Context, userID string) ([]models.ChatGroup, error) {
	return b.client.UserGroups(ctx, userID)
}

func (b *clientBackend) DirectThreads(ctx context.Context, userID string) ([]models.DirectThread, error) {
	return b.client.DirectThreads(ctx, userID)
}

func (b *clientBackend) StartDirect(ctx context.Context, otherUserID string) (models.DirectThread, error) {
	return b.client.StartDirect(ctx, otherUserID)
}

func (b *clientBackend) HasRefunds(ctx context.Context, userID string) (bool, error) {
	return b.client.HasRefunds(ctx, userID)
}

func (b *clientBackend) Messages(ctx context.Context, ref models.ThreadRef) ([]models.Message, error) {
	return b.threads.Messages(ctx, ref)
}

func (b *clientBackend) Send(ctx context.Context, ref models.ThreadRef, text string) (models.Message, error) {
	return b.threads.Send(ctx, ref, text)
}

func (b *clientBackend) ReadAll(ctx context.Context, ref models.ThreadRef) error {
	return b.threads.ReadAll(ctx, ref)
}

func (b *clientBackend) HasNew(ctx context.Context, ref models.ThreadRef, knownCount int) (bool, error) {
	return b.threads.HasNew(ctx, ref, knownCount)
}
