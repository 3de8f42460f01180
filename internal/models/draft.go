package models

import (
	"errors"
	"fmt"
	"strings"
)

// Group draft errors.
var (
	ErrGroupNameRequired = errors.New("group name is required")
	ErrGroupNoMembers    = errors.New("group needs at least one member")
	ErrDuplicateMember   = errors.New("duplicate member")
	ErrEmptyMember       = errors.New("member id is empty")
)

// FieldError ties a validation failure to the payload field that caused it.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Err.Error() }

func (e *FieldError) Unwrap() error { return e.Err }

func fieldErr(field string, err error) error {
	return &FieldError{Field: field, Err: err}
}

// GroupDraft is the payload of a create-group action.
type GroupDraft struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Members     []string `json:"members"`
	CreatedBy   string   `json:"createdBy,omitempty"`
}

// Validate checks the draft before it is sent to the server. All failures
// are reported, joined.
func (d GroupDraft) Validate() error {
	var errs []error
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, fieldErr("name", ErrGroupNameRequired))
	}
	if len(d.Members) == 0 {
		errs = append(errs, fieldErr("members", ErrGroupNoMembers))
	}
	seen := make(map[string]bool, len(d.Members))
	for i, m := range d.Members {
		m = strings.TrimSpace(m)
		field := fmt.Sprintf("members[%d]", i)
		switch {
		case m == "":
			errs = append(errs, fieldErr(field, ErrEmptyMember))
		case seen[m]:
			errs = append(errs, fieldErr(field, fmt.Errorf("%w: %s", ErrDuplicateMember, m)))
		default:
			seen[m] = true
		}
	}
	return errors.Join(errs...)
}
