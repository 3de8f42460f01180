package models

import "errors"

// Model errors.
var (
	ErrInvalidThreadKind = errors.New("invalid thread kind")
	ErrMissingThreadID   = errors.New("thread id is required")
	ErrParticipantCount  = errors.New("direct thread must have exactly two participants")
	ErrAmbiguousParent   = errors.New("message references both a chat group and a direct thread")
)
