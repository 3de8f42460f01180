package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the portal role of a user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

// User is a portal account as returned by the members endpoint.
type User struct {
	ID       string `json:"_id"`
	FullName string `json:"fullName"`
	Email    string `json:"email,omitempty"`
	Role     Role   `json:"role,omitempty"`
}

// Ref returns the denormalized reference form of the user.
func (u User) Ref() UserRef {
	return UserRef{ID: u.ID, FullName: u.FullName}
}

// UserRef references a user. The server sends either a bare id string or a
// populated {_id, fullName} object; both decode into UserRef.
type UserRef struct {
	ID       string `json:"_id"`
	FullName string `json:"fullName,omitempty"`
}

// DisplayName returns the full name, falling back to the id.
func (u UserRef) DisplayName() string {
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	return u.ID
}

// UnmarshalJSON accepts "id", {"_id": "..."} or {"id": "..."}.
func (u *UserRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*u = UserRef{}
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*u = UserRef{ID: id}
		return nil
	}

	var obj struct {
		MongoID  string `json:"_id"`
		ID       string `json:"id"`
		FullName string `json:"fullName"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode user reference: %w", err)
	}
	id := obj.MongoID
	if id == "" {
		id = obj.ID
	}
	*u = UserRef{ID: id, FullName: obj.FullName}
	return nil
}
