// Package session resolves the authenticated caller and hands pages the
// capabilities they need without each one re-deriving user and organization.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/application/realtime"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
)

var (
	// ErrUnauthenticated is returned when no valid session is present
	ErrUnauthenticated = errors.New("unauthenticated")
)

type contextKey string

const sessionKey contextKey = "session"

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *entity.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext returns the session stored by WithSession, or nil.
func FromContext(ctx context.Context) *entity.Session {
	s, _ := ctx.Value(sessionKey).(*entity.Session)
	return s
}

// Provider is the authenticated-session capability
type Provider struct {
	sessions port.SessionRepository
	hub      *realtime.Hub
	ttl      time.Duration
	now      func() time.Time
}

// NewProvider creates a provider issuing sessions that live for ttl.
func NewProvider(sessions port.SessionRepository, hub *realtime.Hub, ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Provider{sessions: sessions, hub: hub, ttl: ttl, now: time.Now}
}

// Resolve looks up a bearer token. Missing, unknown and expired tokens all map to ErrUnauthenticated.
func (p *Provider) Resolve(ctx context.Context, token string) (*entity.Session, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	s, err := p.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if s == nil || s.Expired(p.now()) {
		return nil, ErrUnauthenticated
	}
	return s, nil
}

// Issue creates a new session for the user.
func (p *Provider) Issue(ctx context.Context, userID, organizationID, role string) (*entity.Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := p.now()
	s := &entity.Session{
		Token:          token,
		UserID:         userID,
		OrganizationID: organizationID,
		Role:           role,
		CreatedAt:      now,
		ExpiresAt:      now.Add(p.ttl),
	}
	if err := p.sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// CurrentUser returns the user id of the session in ctx.
func (p *Provider) CurrentUser(ctx context.Context) (string, error) {
	s := FromContext(ctx)
	if s == nil {
		return "", ErrUnauthenticated
	}
	return s.UserID, nil
}

// CurrentOrganization returns the organization id of the session in ctx.
func (p *Provider) CurrentOrganization(ctx context.Context) (string, error) {
	s := FromContext(ctx)
	if s == nil {
		return "", ErrUnauthenticated
	}
	return s.OrganizationID, nil
}

// Subscribe subscribes the caller in ctx; release the result with Unsubscribe.
func (p *Provider) Subscribe(ctx context.Context, channel, event string, handler realtime.Handler) (*realtime.Subscription, error) {
	if FromContext(ctx) == nil {
		return nil, ErrUnauthenticated
	}
	return p.hub.Subscribe(ctx, channel, event, handler)
}

// Purge removes expired sessions.
func (p *Provider) Purge(ctx context.Context) (int64, error) {
	return p.sessions.DeleteExpired(ctx, p.now())
}

// newToken joins two random UUIDs for 244 random bits.
func newToken() (string, error) {
	a, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	b, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return strings.ReplaceAll(a.String()+b.String(), "-", ""), nil
}
