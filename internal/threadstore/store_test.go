package threadstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/chatsync/internal/events"
	"github.com/tOgg1/chatsync/internal/models"
)

func countEvents(t *testing.T, s *Store, types ...events.Kind) *int {
	t.Helper()
	n := new(int)
	cancel, err := s.Events().Subscribe(events.Filter{Kinds: types}, func(events.Event) { *n++ })
	require.NoError(t, err)
	t.Cleanup(cancel)
	return n
}

func TestApplyGroupSnapshotReplaceOnChange(t *testing.T) {
	s := New(Options{})
	changes := countEvents(t, s, events.KindGroups)

	snap := []models.ChatGroup{{ID: "a", Name: "Board", UnreadCount: 3}}
	require.True(t, s.ApplyGroupSnapshot(snap))
	require.False(t, s.ApplyGroupSnapshot([]models.ChatGroup{{ID: "a", Name: "Board", UnreadCount: 3}}))
	require.Equal(t, 1, *changes)

	require.True(t, s.ApplyGroupSnapshot([]models.ChatGroup{{ID: "a", Name: "Board", UnreadCount: 5}}))
	require.Equal(t, 2, *changes)
	require.Equal(t, 5, s.Unread(models.GroupRef("a")))

	// Mutating the caller's slice does not leak into the store.
	snap[0].UnreadCount = 99
	g, ok := s.Group("a")
	require.True(t, ok)
	require.Equal(t, 5, g.UnreadCount)
}

func TestSetUnreadAndTotals(t *testing.T) {
	s := New(Options{})
	s.ApplyGroupSnapshot([]models.ChatGroup{{ID: "g1", UnreadCount: 2}, {ID: "g2", UnreadCount: 1}})
	s.ApplyDirectSnapshot([]models.DirectThread{{ID: "d1", UnreadCount: 4}})
	unread := countEvents(t, s, events.KindUnread)

	groups, direct := s.UnreadTotals()
	require.Equal(t, 3, groups)
	require.Equal(t, 4, direct)

	require.True(t, s.SetUnread(models.DirectRef("d1"), 0))
	require.False(t, s.SetUnread(models.DirectRef("d1"), 0))
	require.False(t, s.SetUnread(models.DirectRef("missing"), 0))
	// Same id under the other kind is a different thread.
	require.False(t, s.SetUnread(models.GroupRef("d1"), 0))
	require.Equal(t, 1, *unread)

	groups, direct = s.UnreadTotals()
	require.Equal(t, 3, groups)
	require.Equal(t, 0, direct)
}

func TestUpsertDirectAndRemoveGroup(t *testing.T) {
	s := New(Options{})
	s.UpsertDirect(models.DirectThread{ID: "d1", UnreadCount: 1})
	s.UpsertDirect(models.DirectThread{ID: "d1", UnreadCount: 2})
	require.Len(t, s.DirectThreads(), 1)
	require.Equal(t, 2, s.Unread(models.DirectRef("d1")))

	s.ApplyGroupSnapshot([]models.ChatGroup{{ID: "g1"}, {ID: "g2"}})
	require.True(t, s.RemoveGroup("g1"))
	require.False(t, s.RemoveGroup("g1"))
	require.Len(t, s.Groups(), 1)
}

func TestSummary(t *testing.T) {
	s := New(Options{})
	s.ApplyDirectSnapshot([]models.DirectThread{{
		ID:           "d1",
		Participants: []models.UserRef{{ID: "me"}, {ID: "u2", FullName: "Grace"}},
		UnreadCount:  1,
	}})

	summary, ok := s.Summary(models.DirectRef("d1"), "me")
	require.True(t, ok)
	require.Equal(t, "Grace", summary.Title)

	_, ok = s.Summary(models.GroupRef("d1"), "me")
	require.False(t, ok)
}

func TestMessagesOrderedByTimestamp(t *testing.T) {
	s := New(Options{})
	ref := models.GroupRef("g1")
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.AppendMessage(ref, models.Message{ID: "m2", Text: "second", Timestamp: base.Add(time.Minute)})
	require.NoError(t, err)
	_, err = s.AppendMessage(ref, models.Message{ID: "m1", Text: "first", Timestamp: base})
	require.NoError(t, err)

	msgs := s.Messages(ref)
	require.Equal(t, "m1", msgs[0].ID)
	require.Equal(t, "m2", msgs[1].ID)
	require.Equal(t, ref, msgs[0].Parent)
	require.Equal(t, base.Add(time.Minute), s.LatestTimestamp(ref))
}

func TestAppendRejectsForeignParent(t *testing.T) {
	s := New(Options{})
	_, err := s.AppendMessage(models.GroupRef("g1"), models.Message{ID: "m1", Parent: models.DirectRef("g1")})
	require.ErrorIs(t, err, ErrParentMismatch)
	require.Empty(t, s.Messages(models.GroupRef("g1")))
}

func TestAppendIgnoresKnownServerID(t *testing.T) {
	s := New(Options{})
	ref := models.DirectRef("d1")
	changed, err := s.AppendMessage(ref, models.Message{ID: "m1", Text: "x"})
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = s.AppendMessage(ref, models.Message{ID: "m1", Text: "x"})
	require.NoError(t, err)
	require.False(t, changed)
	require.Len(t, s.Messages(ref), 1)
}

func TestFetchedMessageReplacesProvisional(t *testing.T) {
	s := New(Options{DedupeTolerance: 5 * time.Second})
	ref := models.GroupRef("g1")
	now := time.Now().UTC()
	me := models.UserRef{ID: "me"}

	_, err := s.AppendMessage(ref, models.Message{ID: "tmp-1", Sender: me, Text: "hello", Timestamp: now, Provisional: true})
	require.NoError(t, err)

	_, err = s.AppendMessage(ref, models.Message{ID: "srv-1", Sender: models.UserRef{ID: "me", FullName: "Me"}, Text: "hello", Timestamp: now.Add(2 * time.Second)})
	require.NoError(t, err)

	msgs := s.Messages(ref)
	require.Len(t, msgs, 1)
	require.Equal(t, "srv-1", msgs[0].ID)
	require.False(t, msgs[0].Provisional)
	require.Equal(t, 1, s.KnownCount(ref))
}

func TestFetchedMessageOutsideToleranceIsDistinct(t *testing.T) {
	s := New(Options{DedupeTolerance: time.Second})
	ref := models.GroupRef("g1")
	now := time.Now().UTC()
	me := models.UserRef{ID: "me"}

	_, _ = s.AppendMessage(ref, models.Message{ID: "tmp-1", Sender: me, Text: "hello", Timestamp: now, Provisional: true})
	_, _ = s.AppendMessage(ref, models.Message{ID: "srv-old", Sender: me, Text: "hello", Timestamp: now.Add(-time.Hour)})

	require.Len(t, s.Messages(ref), 2)
}

func TestConfirmMessage(t *testing.T) {
	s := New(Options{})
	ref := models.DirectRef("d1")
	now := time.Now().UTC()
	me := models.UserRef{ID: "me"}

	_, _ = s.AppendMessage(ref, models.Message{ID: "tmp-1", Sender: me, Text: "hi", Timestamp: now, Provisional: true})
	require.NoError(t, s.ConfirmMessage(ref, "tmp-1", models.Message{ID: "srv-1", Sender: me, Text: "hi", Timestamp: now}))

	msgs := s.Messages(ref)
	require.Len(t, msgs, 1)
	require.Equal(t, "srv-1", msgs[0].ID)
	require.False(t, msgs[0].Provisional)

	// Confirming again after a fetch already delivered it is a no-op.
	require.NoError(t, s.ConfirmMessage(ref, "tmp-1", models.Message{ID: "srv-1", Sender: me, Text: "hi", Timestamp: now}))
	require.Len(t, s.Messages(ref), 1)
}

func TestConfirmAfterFetchRacedAhead(t *testing.T) {
	s := New(Options{})
	ref := models.DirectRef("d1")
	now := time.Now().UTC()
	me := models.UserRef{ID: "me"}

	_, _ = s.AppendMessage(ref, models.Message{ID: "tmp-1", Sender: me, Text: "hi", Timestamp: now, Provisional: true})
	// A message from someone else with the server id arrives first, then the
	// confirmation of our own copy.
	_, _ = s.AppendMessage(ref, models.Message{ID: "srv-2", Sender: models.UserRef{ID: "you"}, Text: "hey", Timestamp: now})
	require.NoError(t, s.ConfirmMessage(ref, "tmp-1", models.Message{ID: "srv-1", Sender: me, Text: "hi", Timestamp: now}))

	msgs := s.Messages(ref)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		require.True(t, m.HasServerID())
	}
}

func TestMarkUnsentKeepsMessage(t *testing.T) {
	s := New(Options{})
	ref := models.GroupRef("g1")
	_, _ = s.AppendMessage(ref, models.Message{ID: "tmp-1", Sender: models.UserRef{ID: "me"}, Text: "hi", Timestamp: time.Now(), Provisional: true})

	require.True(t, s.MarkUnsent(ref, "tmp-1"))
	require.False(t, s.MarkUnsent(ref, "tmp-1"))

	msgs := s.Messages(ref)
	require.Len(t, msgs, 1)
	require.True(t, msgs[0].Unsent)
	require.Equal(t, 0, s.KnownCount(ref))
}

func TestReplaceMessagesKeepsUnmatchedProvisional(t *testing.T) {
	s := New(Options{})
	ref := models.GroupRef("g1")
	now := time.Now().UTC()
	me := models.UserRef{ID: "me"}

	_, _ = s.AppendMessage(ref, models.Message{ID: "tmp-a", Sender: me, Text: "pending", Timestamp: now, Provisional: true})
	_, _ = s.AppendMessage(ref, models.Message{ID: "tmp-b", Sender: me, Text: "confirmed", Timestamp: now, Provisional: true})

	result, err := s.ReplaceMessages(ref, []models.Message{
		{ID: "m1", Sender: models.UserRef{ID: "you"}, Text: "earlier", Timestamp: now.Add(-time.Minute)},
		{ID: "m2", Sender: me, Text: "confirmed", Timestamp: now.Add(time.Second)},
	})
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.Equal(t, 2, result.Added)

	msgs := s.Messages(ref)
	require.Len(t, msgs, 3)
	require.Equal(t, "m1", msgs[0].ID)
	ids := map[string]bool{}
	for _, m := range msgs {
		ids[m.ID] = true
	}
	require.True(t, ids["tmp-a"])
	require.True(t, ids["m2"])
	require.False(t, ids["tmp-b"])

	again, err := s.ReplaceMessages(ref, []models.Message{
		{ID: "m2", Sender: me, Text: "confirmed", Timestamp: now.Add(time.Second)},
		{ID: "m1", Sender: models.UserRef{ID: "you"}, Text: "earlier", Timestamp: now.Add(-time.Minute)},
	})
	require.NoError(t, err)
	require.False(t, again.Changed)
	require.Equal(t, 0, again.Added)
}

func TestReplaceMessagesRejectsForeignParent(t *testing.T) {
	s := New(Options{})
	_, err := s.ReplaceMessages(models.GroupRef("g1"), []models.Message{{ID: "m1", Parent: models.GroupRef("g2")}})
	require.ErrorIs(t, err, ErrParentMismatch)
}

func TestCloseThread(t *testing.T) {
	s := New(Options{})
	ref := models.GroupRef("g1")
	_, _ = s.AppendMessage(ref, models.Message{ID: "m1"})
	s.CloseThread(ref)
	require.Empty(t, s.Messages(ref))
}
