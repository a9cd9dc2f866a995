// Package service holds the business rules. Handlers translate wire shapes
// and call in here; stores enforce transactional invariants; everything in
// between lives in this package.
package service

import (
	"context"
	"log"
	"time"

	"warungpos/internal/domain"
	"warungpos/internal/store"
	"warungpos/internal/xid"
)

type Service struct {
	repo    store.Repository
	storeID string
	gstRate float64
	now     func() time.Time
}

func New(repo store.Repository, storeID string, gstRate float64) *Service {
	return &Service{
		repo:    repo,
		storeID: storeID,
		gstRate: gstRate,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the service clock, for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

type actorKey struct{}

// WithActor attaches the authenticated actor to the context. The auth
// middleware calls this; service methods read it back for stamping and audit.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the request actor, or the system actor for
// unauthenticated paths (webhook, background jobs).
func ActorFromContext(ctx context.Context) domain.Actor {
	if actor, ok := ctx.Value(actorKey{}).(domain.Actor); ok && actor.Username != "" {
		return actor
	}
	return domain.Actor{Username: "system", Role: "system"}
}

// stampNew fills creation and update metadata before first save.
func (s *Service) stampNew(ctx context.Context, stamp *domain.AuditStamp) {
	actor := ActorFromContext(ctx)
	now := s.now()
	stamp.CreatedAt = now
	stamp.CreatedBy = actor.Username
	stamp.UpdatedAt = now
	stamp.UpdatedBy = actor.Username
}

func (s *Service) stampUpdate(ctx context.Context, stamp *domain.AuditStamp) {
	actor := ActorFromContext(ctx)
	stamp.UpdatedAt = s.now()
	stamp.UpdatedBy = actor.Username
}

// logAudit records who did what. Best effort: a failed audit write never
// fails the business operation.
func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor := ActorFromContext(ctx)
	err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       s.storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	})
	if err != nil {
		log.Printf("[service] WARN: audit log %s %s/%s: %v", action, entityType, entityID, err)
	}
}

func (s *Service) AuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	return s.repo.ListAuditLogs(ctx, s.storeID, from, to, limit)
}
