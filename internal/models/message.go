package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TempIDPrefix marks client-generated ids of provisional messages.
const TempIDPrefix = "tmp-"

// Message is a single chat message. Parent is set exactly once and never
// changes; a message belongs to one group or one direct thread.
type Message struct {
	ID        string
	Parent    ThreadRef
	Sender    UserRef
	Text      string
	Timestamp time.Time

	// Provisional is set on optimistic local copies until the server
	// confirms them.
	Provisional bool
	// Unsent is set when the create request for a provisional copy failed.
	Unsent bool
}

// HasServerID reports whether the message carries a server-assigned id.
func (m Message) HasServerID() bool {
	return m.ID != "" && !strings.HasPrefix(m.ID, TempIDPrefix)
}

type messageWire struct {
	ID        string          `json:"_id,omitempty"`
	AltID     string          `json:"id,omitempty"`
	ChatGroup json.RawMessage `json:"chatGroup,omitempty"`
	Thread    json.RawMessage `json:"thread,omitempty"`
	Sender    UserRef         `json:"sender"`
	Text      string          `json:"text"`
	CreatedAt time.Time       `json:"createdAt"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

// UnmarshalJSON decodes the server representation. The parent comes from
// either "chatGroup" or "thread"; carrying both is rejected.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire messageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	groupID, err := decodeRefID(wire.ChatGroup)
	if err != nil {
		return fmt.Errorf("decode chatGroup: %w", err)
	}
	threadID, err := decodeRefID(wire.Thread)
	if err != nil {
		return fmt.Errorf("decode thread: %w", err)
	}

	var parent ThreadRef
	switch {
	case groupID != "" && threadID != "":
		return ErrAmbiguousParent
	case groupID != "":
		parent = GroupRef(groupID)
	case threadID != "":
		parent = DirectRef(threadID)
	}

	id := wire.ID
	if id == "" {
		id = wire.AltID
	}
	ts := wire.CreatedAt
	if wire.Timestamp != nil && !wire.Timestamp.IsZero() {
		ts = *wire.Timestamp
	}

	*m = Message{
		ID:        id,
		Parent:    parent,
		Sender:    wire.Sender,
		Text:      wire.Text,
		Timestamp: ts,
	}
	return nil
}

// MarshalJSON encodes the message in the server representation.
func (m Message) MarshalJSON() ([]byte, error) {
	wire := struct {
		ID        string    `json:"_id,omitempty"`
		ChatGroup string    `json:"chatGroup,omitempty"`
		Thread    string    `json:"thread,omitempty"`
		Sender    UserRef   `json:"sender"`
		Text      string    `json:"text"`
		CreatedAt time.Time `json:"createdAt"`
	}{
		ID:        m.ID,
		Sender:    m.Sender,
		Text:      m.Text,
		CreatedAt: m.Timestamp,
	}
	switch m.Parent.Kind {
	case ThreadKindGroup:
		wire.ChatGroup = m.Parent.ID
	case ThreadKindDirect:
		wire.Thread = m.Parent.ID
	}
	return json.Marshal(wire)
}

// decodeRefID accepts a bare id string or a populated object with _id/id.
func decodeRefID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var id string
		err := json.Unmarshal(raw, &id)
		return id, err
	}
	var obj struct {
		MongoID string `json:"_id"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", err
	}
	if obj.MongoID != "" {
		return obj.MongoID, nil
	}
	return obj.ID, nil
}

// SortMessages orders messages by timestamp ascending, breaking ties by id.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// CloneMessages returns a copy of msgs that shares no backing array.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
