package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PayloadState records whether a serialized auth session payload could be parsed.
type PayloadState string

const (
	PayloadOK         PayloadState = "ok"
	PayloadUnparsable PayloadState = "unparsable"
)

// Identity is the authenticated principal carried by an auth session.
type Identity struct {
	UserID      string `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Role        string `json:"role,omitempty" yaml:"role,omitempty"`
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
}

// AuthSession is an identity-provider session with an explicit, optional principal.
type AuthSession struct {
	ID           string     `json:"id" yaml:"id"`
	Principal    *Identity  `json:"principal,omitempty" yaml:"principal,omitempty"`
	Payload      string     `json:"-" yaml:"-"`
	PayloadState string     `json:"payload_state" yaml:"payload_state"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" yaml:"updated_at"`
}

// HasPrincipal reports whether the session is bound to an authenticated principal.
func (s AuthSession) HasPrincipal() bool {
	return s.Principal != nil
}

type authPayload struct {
	Principal json.RawMessage `json:"principal"`
	Passport  *struct {
		User json.RawMessage `json:"user"`
	} `json:"passport"`
}

type principalObject struct {
	ID          string `json:"id"`
	MongoID     string `json:"_id"`
	UserID      string `json:"user_id"`
	Sub         string `json:"sub"`
	Role        string `json:"role"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// ParseAuthPayload extracts the principal from a serialized session payload.
// Both the current {"principal": {...}} shape and the passport
// {"passport": {"user": ...}} shape are understood. A nil identity with a nil
// error means the payload parsed but carries no principal.
func ParseAuthPayload(raw string) (*Identity, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("auth payload is empty")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return nil, fmt.Errorf("auth payload is not a JSON object")
	}

	var payload authPayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return nil, fmt.Errorf("parse auth payload: %w", err)
	}

	if identity, err := identityFromRaw(payload.Principal); err != nil || identity != nil {
		return identity, err
	}
	if payload.Passport != nil {
		return identityFromRaw(payload.Passport.User)
	}
	return nil, nil
}

func identityFromRaw(raw json.RawMessage) (*Identity, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '"':
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return nil, fmt.Errorf("parse principal id: %w", err)
		}
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, nil
		}
		return &Identity{UserID: id}, nil
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("parse principal: %w", err)
		}
		if len(fields) == 0 {
			return nil, nil
		}
		var obj principalObject
		// Unknown field types are tolerated; a non-empty object is still a principal.
		_ = json.Unmarshal(raw, &obj)
		identity := &Identity{
			UserID:      firstNonEmpty(obj.UserID, obj.ID, obj.MongoID, obj.Sub),
			Role:        strings.TrimSpace(obj.Role),
			DisplayName: firstNonEmpty(obj.DisplayName, obj.Name),
		}
		return identity, nil
	default:
		// Numbers and other scalars are opaque ids.
		return &Identity{UserID: string(raw)}, nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
