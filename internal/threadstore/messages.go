package threadstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/tOgg1/chatsync/internal/events"
	"github.com/tOgg1/chatsync/internal/models"
)

// ErrParentMismatch is returned when a message is filed under a thread other
// than its parent. Messages never move between threads.
var ErrParentMismatch = errors.New("message parent does not match thread")

// ReplaceResult describes the effect of an authoritative replace.
type ReplaceResult struct {
	Changed bool
	// Added counts server messages that were not held before.
	Added int
}

// Messages returns a copy of the message list of a thread in timestamp order.
func (s *Store) Messages(ref models.ThreadRef) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneMessages(s.messages[ref])
}

// KnownCount returns the number of server-confirmed messages held for a thread.
func (s *Store) KnownCount(ref models.ThreadRef) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.messages[ref] {
		if m.HasServerID() {
			n++
		}
	}
	return n
}

// LatestTimestamp returns the newest message timestamp held for a thread.
func (s *Store) LatestTimestamp(ref models.ThreadRef) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[ref]
	if len(msgs) == 0 {
		return time.Time{}
	}
	return msgs[len(msgs)-1].Timestamp
}

// CloseThread drops the message list of a thread that is no longer open.
func (s *Store) CloseThread(ref models.ThreadRef) {
	s.mu.Lock()
	delete(s.messages, ref)
	s.mu.Unlock()
}

// AppendMessage adds one message to a thread. A server message that matches
// a provisional copy replaces that copy; a server id already held is ignored.
// It reports whether the list changed.
func (s *Store) AppendMessage(ref models.ThreadRef, msg models.Message) (bool, error) {
	msg, err := adopt(ref, msg)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	list := s.messages[ref]
	if msg.HasServerID() {
		for _, existing := range list {
			if existing.ID == msg.ID {
				s.mu.Unlock()
				return false, nil
			}
		}
		if idx := s.matchProvisional(list, msg, nil); idx >= 0 {
			list[idx] = msg
			models.SortMessages(list)
			s.messages[ref] = list
			s.mu.Unlock()
			s.publishMessages(ref)
			return true, nil
		}
	}
	list = append(list, msg)
	models.SortMessages(list)
	s.messages[ref] = list
	s.mu.Unlock()

	s.publishMessages(ref)
	return true, nil
}

// ConfirmMessage swaps the provisional copy tempID for the server-confirmed
// message. If a fetch already delivered the confirmed message, the
// provisional copy is simply dropped.
func (s *Store) ConfirmMessage(ref models.ThreadRef, tempID string, confirmed models.Message) error {
	confirmed, err := adopt(ref, confirmed)
	if err != nil {
		return err
	}
	confirmed.Provisional = false
	confirmed.Unsent = false

	s.mu.Lock()
	list := s.messages[ref]
	tempIdx, serverIdx := -1, -1
	for i, m := range list {
		if m.ID == tempID {
			tempIdx = i
		}
		if confirmed.ID != "" && m.ID == confirmed.ID {
			serverIdx = i
		}
	}

	switch {
	case tempIdx >= 0 && serverIdx >= 0:
		list = append(list[:tempIdx:tempIdx], list[tempIdx+1:]...)
	case tempIdx >= 0:
		list[tempIdx] = confirmed
	case serverIdx < 0:
		list = append(list, confirmed)
	default:
		s.mu.Unlock()
		return nil
	}
	models.SortMessages(list)
	s.messages[ref] = list
	s.mu.Unlock()

	s.publishMessages(ref)
	return nil
}

// MarkUnsent flags a provisional copy whose create request failed. The copy
// stays in the list.
func (s *Store) MarkUnsent(ref models.ThreadRef, tempID string) bool {
	s.mu.Lock()
	changed := false
	for i := range s.messages[ref] {
		m := &s.messages[ref][i]
		if m.ID == tempID && m.Provisional && !m.Unsent {
			m.Unsent = true
			changed = true
			break
		}
	}
	s.mu.Unlock()

	if changed {
		s.publishMessages(ref)
	}
	return changed
}

// ReplaceMessages installs the server's full message list for a thread.
// Provisional copies the server list does not account for are kept, so a
// send still in flight or a failed send stays visible.
func (s *Store) ReplaceMessages(ref models.ThreadRef, msgs []models.Message) (ReplaceResult, error) {
	incoming := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		adopted, err := adopt(ref, m)
		if err != nil {
			return ReplaceResult{}, err
		}
		adopted.Provisional = false
		adopted.Unsent = false
		incoming = append(incoming, adopted)
	}

	s.mu.Lock()
	prev := s.messages[ref]

	held := make(map[string]struct{}, len(prev))
	for _, m := range prev {
		if m.HasServerID() {
			held[m.ID] = struct{}{}
		}
	}
	added := 0
	for _, m := range incoming {
		if _, ok := held[m.ID]; !ok {
			added++
		}
	}

	used := make(map[int]struct{})
	next := append(make([]models.Message, 0, len(incoming)+len(prev)), incoming...)
	for _, p := range prev {
		if !p.Provisional {
			continue
		}
		if idx := s.matchServer(incoming, p, used); idx >= 0 {
			used[idx] = struct{}{}
			continue
		}
		next = append(next, p)
	}
	models.SortMessages(next)

	changed := !sameMessages(prev, next)
	if changed {
		s.messages[ref] = next
	}
	s.mu.Unlock()

	if changed {
		s.publishMessages(ref)
	}
	return ReplaceResult{Changed: changed, Added: added}, nil
}

// matchProvisional finds a provisional copy in list that msg confirms.
func (s *Store) matchProvisional(list []models.Message, msg models.Message, used map[int]struct{}) int {
	for i, p := range list {
		if _, taken := used[i]; taken {
			continue
		}
		if s.confirms(msg, p) {
			return i
		}
	}
	return -1
}

// matchServer finds the server message in incoming that confirms p.
func (s *Store) matchServer(incoming []models.Message, p models.Message, used map[int]struct{}) int {
	for i, m := range incoming {
		if _, taken := used[i]; taken {
			continue
		}
		if s.confirms(m, p) {
			return i
		}
	}
	return -1
}

// confirms reports whether server message m is the confirmed form of the
// provisional copy p: same sender, same text, close timestamps, and p has
// not been assigned a server id.
func (s *Store) confirms(m, p models.Message) bool {
	if !p.Provisional || p.HasServerID() || !m.HasServerID() {
		return false
	}
	if m.Sender.ID != p.Sender.ID || m.Text != p.Text {
		return false
	}
	delta := m.Timestamp.Sub(p.Timestamp)
	if delta < 0 {
		delta = -delta
	}
	return delta <= s.tolerance
}

func (s *Store) publishMessages(ref models.ThreadRef) {
	s.publisher.Publish(events.Event{Kind: events.KindMessages, Thread: ref})
}

func adopt(ref models.ThreadRef, msg models.Message) (models.Message, error) {
	if msg.Parent.IsZero() {
		msg.Parent = ref
		return msg, nil
	}
	if msg.Parent != ref {
		return msg, fmt.Errorf("%w: message %s belongs to %s, not %s", ErrParentMismatch, msg.ID, msg.Parent, ref)
	}
	return msg, nil
}

func sameMessages(a, b []models.Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Text != b[i].Text || a[i].Unsent != b[i].Unsent ||
			a[i].Provisional != b[i].Provisional || !a[i].Timestamp.Equal(b[i].Timestamp) ||
			a[i].Sender != b[i].Sender {
			return false
		}
	}
	return true
}
