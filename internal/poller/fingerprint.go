package poller

import (
	"sort"
	"strconv"
	"strings"

	"github.com/tOgg1/chatsync/internal/models"
)

// UnreadFingerprint builds a stable string from sorted (id, count) pairs.
// Input order does not matter.
func UnreadFingerprint[T any](items []T, id func(T) string, count func(T) int) string {
	pairs := make([]string, 0, len(items))
	for _, item := range items {
		pairs = append(pairs, strconv.Quote(id(item))+":"+strconv.Itoa(count(item)))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

// GroupsFingerprint fingerprints a group list by unread counts.
func GroupsFingerprint(groups []models.ChatGroup) string {
	return UnreadFingerprint(groups,
		func(g models.ChatGroup) string { return g.ID },
		func(g models.ChatGroup) int { return g.UnreadCount },
	)
}

// DirectFingerprint fingerprints a direct-thread list by unread counts.
func DirectFingerprint(threads []models.DirectThread) string {
	return UnreadFingerprint(threads,
		func(d models.DirectThread) string { return d.ID },
		func(d models.DirectThread) int { return d.UnreadCount },
	)
}

// CountFingerprint fingerprints the has-new variant by message count.
func CountFingerprint(n int) string {
	return "n=" + strconv.Itoa(n)
}

// MessagesFingerprint fingerprints a message list by its length.
func MessagesFingerprint(msgs []models.Message) string {
	return CountFingerprint(len(msgs))
}
