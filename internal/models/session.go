package models

import (
	"fmt"
	"strings"
	"time"
)

// RequestStatus is the lifecycle state of a session request.
type RequestStatus string

const (
	RequestRequested RequestStatus = "requested"
	RequestAccepted  RequestStatus = "accepted"
	RequestDeclined  RequestStatus = "declined"
	RequestActive    RequestStatus = "active"
	RequestCancelled RequestStatus = "cancelled"
	RequestCompleted RequestStatus = "completed"
)

// SessionEvent is an action one party applies to a session request.
type SessionEvent string

const (
	EventAccept   SessionEvent = "accept"
	EventDecline  SessionEvent = "decline"
	EventWithdraw SessionEvent = "withdraw"
	EventStart    SessionEvent = "start"
	EventCancel   SessionEvent = "cancel"
	EventEnd      SessionEvent = "end"
)

// Role is the platform role of a user.
type Role string

const (
	RoleMigrant Role = "migrant"
	RoleGuide   Role = "guide"
)

var validRequestStatuses = map[RequestStatus]struct{}{
	RequestRequested: {},
	RequestAccepted:  {},
	RequestDeclined:  {},
	RequestActive:    {},
	RequestCancelled: {},
	RequestCompleted: {},
}

var terminalRequestStatuses = map[RequestStatus]struct{}{
	RequestDeclined:  {},
	RequestCancelled: {},
	RequestCompleted: {},
}

var validSessionEvents = map[SessionEvent]struct{}{
	EventAccept:   {},
	EventDecline:  {},
	EventWithdraw: {},
	EventStart:    {},
	EventCancel:   {},
	EventEnd:      {},
}

type transitionGuard int

const (
	guardGuide transitionGuard = iota
	guardMigrant
	guardEitherParty
)

type transition struct {
	to    RequestStatus
	guard transitionGuard
}

var sessionTransitions = map[RequestStatus]map[SessionEvent]transition{
	RequestRequested: {
		EventAccept:   {to: RequestAccepted, guard: guardGuide},
		EventDecline:  {to: RequestDeclined, guard: guardGuide},
		EventWithdraw: {to: RequestCancelled, guard: guardMigrant},
	},
	RequestAccepted: {
		EventStart:  {to: RequestActive, guard: guardEitherParty},
		EventCancel: {to: RequestCancelled, guard: guardEitherParty},
	},
	RequestActive: {
		EventEnd: {to: RequestCompleted, guard: guardEitherParty},
	},
}

// legacyStatusAliases maps values found in older records onto the canonical enum.
var legacyStatusAliases = map[string]RequestStatus{
	"pending":     RequestRequested,
	"requested":   RequestRequested,
	"new":         RequestRequested,
	"accepted":    RequestAccepted,
	"confirmed":   RequestAccepted,
	"approved":    RequestAccepted,
	"declined":    RequestDeclined,
	"rejected":    RequestDeclined,
	"active":      RequestActive,
	"ongoing":     RequestActive,
	"in_progress": RequestActive,
	"cancelled":   RequestCancelled,
	"canceled":    RequestCancelled,
	"withdrawn":   RequestCancelled,
	"completed":   RequestCompleted,
	"done":        RequestCompleted,
	"closed":      RequestCompleted,
}

// Actor is the identity performing a mutating call, as supplied by the identity collaborator.
type Actor struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// SessionRequest is one migrant-guide consultation request.
type SessionRequest struct {
	ID            string     `json:"id" yaml:"id"`
	MigrantID     string     `json:"migrant_id" yaml:"migrant_id"`
	MigrantName   string     `json:"migrant_name" yaml:"migrant_name"`
	GuideID       string     `json:"guide_id" yaml:"guide_id"`
	GuideName     string     `json:"guide_name" yaml:"guide_name"`
	Title         string     `json:"title" yaml:"title"`
	RequestStatus string     `json:"request_status" yaml:"request_status"`
	CreatedAt     time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty" yaml:"closed_at,omitempty"`
}

// LegacySessionRecord is a session as exported from the previous system, where
// the state lived in either status or requestStatus.
type LegacySessionRecord struct {
	ID            string     `json:"_id" yaml:"_id"`
	MigrantID     string     `json:"migrantId" yaml:"migrantId"`
	MigrantName   string     `json:"migrantName" yaml:"migrantName"`
	GuideID       string     `json:"guideId" yaml:"guideId"`
	GuideName     string     `json:"guideName" yaml:"guideName"`
	Title         string     `json:"title" yaml:"title"`
	Status        string     `json:"status,omitempty" yaml:"status,omitempty"`
	RequestStatus string     `json:"requestStatus,omitempty" yaml:"requestStatus,omitempty"`
	CreatedAt     time.Time  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

func IsValidRequestStatus(status RequestStatus) bool {
	_, ok := validRequestStatuses[status]
	return ok
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status RequestStatus) bool {
	_, ok := terminalRequestStatuses[status]
	return ok
}

func ParseRequestStatus(raw string) (RequestStatus, error) {
	value := RequestStatus(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("request status is required")
	}
	if !IsValidRequestStatus(value) {
		return "", fmt.Errorf("invalid request status: %s", value)
	}
	return value, nil
}

func ParseSessionEvent(raw string) (SessionEvent, error) {
	value := SessionEvent(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("session event is required")
	}
	if _, ok := validSessionEvents[value]; !ok {
		return "", fmt.Errorf("invalid session event: %s", value)
	}
	return value, nil
}

func ParseRole(raw string) (Role, error) {
	value := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case RoleMigrant, RoleGuide:
		return value, nil
	case "":
		return "", fmt.Errorf("role is required")
	default:
		return "", fmt.Errorf("invalid role: %s", value)
	}
}

// NextStatus applies event on behalf of actorID and returns the resulting state.
// Identities are compared exactly.
func NextStatus(session SessionRequest, actorID string, event SessionEvent) (RequestStatus, error) {
	from := RequestStatus(session.RequestStatus)
	edges, ok := sessionTransitions[from]
	if !ok {
		return "", fmt.Errorf("session %s is %s: no transitions allowed", session.ID, from)
	}
	edge, ok := edges[event]
	if !ok {
		return "", fmt.Errorf("cannot %s a session that is %s", event, from)
	}

	allowed := false
	switch edge.guard {
	case guardGuide:
		allowed = actorID == session.GuideID
	case guardMigrant:
		allowed = actorID == session.MigrantID
	case guardEitherParty:
		allowed = actorID == session.GuideID || actorID == session.MigrantID
	}
	if !allowed {
		return "", fmt.Errorf("actor %q may not %s session %s", actorID, event, session.ID)
	}
	return edge.to, nil
}

// NormalizeLegacyStatus resolves the canonical status of a legacy record.
// requestStatus wins over status when both are present.
func NormalizeLegacyStatus(record LegacySessionRecord) (RequestStatus, error) {
	raw := strings.TrimSpace(record.RequestStatus)
	if raw == "" {
		raw = strings.TrimSpace(record.Status)
	}
	if raw == "" {
		return "", fmt.Errorf("session %s has no status", record.ID)
	}
	key := strings.ReplaceAll(strings.ToLower(raw), "-", "_")
	status, ok := legacyStatusAliases[key]
	if !ok {
		return "", fmt.Errorf("session %s has unknown status %q", record.ID, raw)
	}
	return status, nil
}
