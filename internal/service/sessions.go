package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"guidepost/internal/apperr"
	"guidepost/internal/models"
	"guidepost/internal/store"
)

// SessionService drives session requests through their lifecycle.
// The only way to change a request's status is Transition.
type SessionService struct {
	base
	sessions store.SessionStore
	users    store.UserStore
}

// NewSessionService constructs a SessionService.
func NewSessionService(sessions store.SessionStore, users store.UserStore, opts Options) *SessionService {
	return &SessionService{base: newBase("sessions", opts), sessions: sessions, users: users}
}

// RequestSession creates a requested session from the acting migrant to guideID.
func (s *SessionService) RequestSession(ctx context.Context, actor models.Actor, guideID, title string) (models.SessionRequest, error) {
	var zero models.SessionRequest
	if actor.UserID == "" {
		return zero, apperr.ValidationCode(fmt.Errorf("user id is required"), apperr.CodeMissingRequired)
	}
	if actor.Role != models.RoleMigrant {
		return zero, apperr.ValidationCode(fmt.Errorf("only migrants can request sessions"), apperr.CodeInvalidRole)
	}
	if guideID == "" {
		return zero, apperr.ValidationCode(fmt.Errorf("guide id is required"), apperr.CodeMissingRequired)
	}
	if actor.UserID == guideID {
		return zero, apperr.ValidationCode(fmt.Errorf("a user cannot request a session with themselves"), apperr.CodeSelfRequest)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return zero, apperr.ValidationCode(fmt.Errorf("title is required"), apperr.CodeMissingRequired)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	guide, err := s.users.GetUser(ctx, guideID)
	if err != nil {
		return zero, storeError("get guide", err)
	}
	if guide == nil {
		return zero, apperr.ValidationCode(fmt.Errorf("guide %s is not a known user", guideID), apperr.CodeGuideRoleRequired)
	}
	if models.Role(guide.Role) != models.RoleGuide {
		return zero, apperr.ValidationCode(fmt.Errorf("user %s is not a guide", guideID), apperr.CodeGuideRoleRequired)
	}

	migrantName := actor.UserID
	if migrant, err := s.users.GetUser(ctx, actor.UserID); err != nil {
		return zero, storeError("get migrant", err)
	} else if migrant != nil && migrant.DisplayName != "" {
		migrantName = migrant.DisplayName
	}
	guideName := guide.DisplayName
	if guideName == "" {
		guideName = guide.ID
	}

	id, err := store.GenerateSessionID(func(id string) (bool, error) {
		return s.sessions.SessionExists(ctx, id)
	})
	if err != nil {
		return zero, storeError("generate session id", err)
	}

	session := models.SessionRequest{
		ID:            id,
		MigrantID:     actor.UserID,
		MigrantName:   migrantName,
		GuideID:       guide.ID,
		GuideName:     guideName,
		Title:         title,
		RequestStatus: string(models.RequestRequested),
		CreatedAt:     s.now(),
	}
	if err := s.sessions.CreateSession(ctx, &session); err != nil {
		return zero, storeError("create session", err)
	}

	s.logger.Info("session requested", "session_id", id, "migrant_id", session.MigrantID, "guide_id", session.GuideID)
	return session, nil
}

// Transition applies event to a session on behalf of actor.
// The guard check and the write form one compare-and-swap on the current status;
// a lost race or a disallowed edge returns an invalid transition error and
// leaves the record untouched.
func (s *SessionService) Transition(ctx context.Context, sessionID string, actor models.Actor, event models.SessionEvent) (models.SessionRequest, error) {
	var zero models.SessionRequest
	event, err := models.ParseSessionEvent(string(event))
	if err != nil {
		return zero, apperr.Validation(err)
	}
	if actor.UserID == "" {
		return zero, apperr.ValidationCode(fmt.Errorf("user id is required"), apperr.CodeMissingRequired)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return zero, err
	}

	from := models.RequestStatus(session.RequestStatus)
	to, err := models.NextStatus(session, actor.UserID, event)
	if err != nil {
		return zero, apperr.InvalidTransition(err)
	}

	now := s.now()
	var closedAt *time.Time
	if models.IsTerminal(to) {
		closedAt = &now
	}

	swapped, err := s.sessions.TransitionSession(ctx, session.ID, from, to, now, closedAt)
	if err != nil {
		return zero, storeError("transition session", err)
	}
	if !swapped {
		return zero, apperr.InvalidTransition(fmt.Errorf("session %s is no longer %s", session.ID, from))
	}

	s.logger.Info("session transitioned", "session_id", session.ID, "event", event, "from", from, "to", to, "actor", actor.UserID)

	session.RequestStatus = string(to)
	session.UpdatedAt = &now
	if closedAt != nil {
		session.ClosedAt = closedAt
	}
	return session, nil
}

// Accept moves a requested session to accepted.
func (s *SessionService) Accept(ctx context.Context, sessionID string, actor models.Actor) (models.SessionRequest, error) {
	return s.Transition(ctx, sessionID, actor, models.EventAccept)
}

// Decline moves a requested session to declined.
func (s *SessionService) Decline(ctx context.Context, sessionID string, actor models.Actor) (models.SessionRequest, error) {
	return s.Transition(ctx, sessionID, actor, models.EventDecline)
}

// Withdraw cancels a requested session on behalf of the migrant.
func (s *SessionService) Withdraw(ctx context.Context, sessionID string, actor models.Actor) (models.SessionRequest, error) {
	return s.Transition(ctx, sessionID, actor, models.EventWithdraw)
}

// Start moves an accepted session to active.
func (s *SessionService) Start(ctx context.Context, sessionID string, actor models.Actor) (models.SessionRequest, error) {
	return s.Transition(ctx, sessionID, actor, models.EventStart)
}

// Cancel cancels an accepted session.
func (s *SessionService) Cancel(ctx context.Context, sessionID string, actor models.Actor) (models.SessionRequest, error) {
	return s.Transition(ctx, sessionID, actor, models.EventCancel)
}

// End completes an active session.
func (s *SessionService) End(ctx context.Context, sessionID string, actor models.Actor) (models.SessionRequest, error) {
	return s.Transition(ctx, sessionID, actor, models.EventEnd)
}

// GetSession returns one session request.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (models.SessionRequest, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.getSession(ctx, sessionID)
}

func (s *SessionService) getSession(ctx context.Context, sessionID string) (models.SessionRequest, error) {
	if sessionID == "" {
		return models.SessionRequest{}, apperr.ValidationCode(fmt.Errorf("session id is required"), apperr.CodeMissingRequired)
	}
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return models.SessionRequest{}, storeError("get session", err)
	}
	if session == nil {
		return models.SessionRequest{}, apperr.NotFoundCode(fmt.Errorf("session not found: %s", sessionID), apperr.CodeSessionNotFound)
	}
	return *session, nil
}

// ListForUser returns the sessions where userID is the party named by role.
func (s *SessionService) ListForUser(ctx context.Context, userID string, role models.Role) ([]models.SessionRequest, error) {
	if userID == "" {
		return nil, apperr.ValidationCode(fmt.Errorf("user id is required"), apperr.CodeMissingRequired)
	}
	if _, err := models.ParseRole(string(role)); err != nil {
		return nil, apperr.ValidationCode(err, apperr.CodeInvalidRole)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	sessions, err := s.sessions.ListSessionsForUser(ctx, userID, role)
	if err != nil {
		return nil, storeError("list sessions", err)
	}
	return sessions, nil
}

// ImportLegacySessions writes legacy records once, normalizing status and
// requestStatus into the canonical request status. Records that cannot be
// normalized are reported and skipped; records already present are left alone.
func (s *SessionService) ImportLegacySessions(ctx context.Context, records []models.LegacySessionRecord) (models.LegacyImportResult, error) {
	result := models.LegacyImportResult{Errors: map[string]string{}}

	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return result, apperr.FromContext(err)
		}

		key := record.ID
		if key == "" {
			key = fmt.Sprintf("#%d", i)
		}

		session, err := legacyToSession(record)
		if err != nil {
			result.Skipped++
			result.Errors[key] = err.Error()
			s.logger.Warn("skip legacy session", "record", key, "error", err)
			continue
		}

		opCtx, cancel := s.opContext(ctx)
		imported, err := s.sessions.ImportSession(opCtx, &session)
		cancel()
		if err != nil {
			result.Skipped++
			result.Errors[key] = storeError("import session", err).Error()
			s.logger.Warn("import legacy session", "record", key, "error", err)
			continue
		}
		if !imported {
			result.Skipped++
			continue
		}
		result.Imported++
	}

	if len(result.Errors) == 0 {
		result.Errors = nil
	}
	s.logger.Info("legacy sessions imported", "imported", result.Imported, "skipped", result.Skipped)
	return result, nil
}

func legacyToSession(record models.LegacySessionRecord) (models.SessionRequest, error) {
	if record.ID == "" {
		return models.SessionRequest{}, fmt.Errorf("record has no id")
	}
	if record.MigrantID == "" || record.GuideID == "" {
		return models.SessionRequest{}, fmt.Errorf("session %s is missing a party", record.ID)
	}
	if record.MigrantID == record.GuideID {
		return models.SessionRequest{}, fmt.Errorf("session %s has the same migrant and guide", record.ID)
	}
	if record.CreatedAt.IsZero() {
		return models.SessionRequest{}, fmt.Errorf("session %s has no creation time", record.ID)
	}
	status, err := models.NormalizeLegacyStatus(record)
	if err != nil {
		return models.SessionRequest{}, err
	}

	session := models.SessionRequest{
		ID:            record.ID,
		MigrantID:     record.MigrantID,
		MigrantName:   record.MigrantName,
		GuideID:       record.GuideID,
		GuideName:     record.GuideName,
		Title:         record.Title,
		RequestStatus: string(status),
		CreatedAt:     record.CreatedAt.UTC(),
		UpdatedAt:     record.UpdatedAt,
	}
	if models.IsTerminal(status) {
		closed := record.CreatedAt.UTC()
		if record.UpdatedAt != nil {
			closed = record.UpdatedAt.UTC()
		}
		session.ClosedAt = &closed
	}
	return session, nil
}
