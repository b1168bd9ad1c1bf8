package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionEventType is used as the AMQP routing key.
type SessionEventType string

const (
	EventUserRegistered SessionEventType = "user.registered"
	EventSessionRevoked SessionEventType = "session.revoked"
)

// Reasons attached to session.revoked.
const (
	RevokeReasonLogout         = "logout"
	RevokeReasonLogin          = "login"
	RevokeReasonPasswordChange = "password_change"
	RevokeReasonRestricted     = "restricted"
)

// SessionEvent is published by auth-service after session state changes.
type SessionEvent struct {
	Type       SessionEventType `json:"type"`
	SubjectID  uuid.UUID        `json:"subjectId"`
	Reason     string           `json:"reason,omitempty"`
	Revoked    int64            `json:"revoked,omitempty"`
	OccurredAt time.Time        `json:"occurredAt"`
}
