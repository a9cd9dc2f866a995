// Package session stores per-phone conversation state. Sessions expire after
// a period of inactivity; expiry is passive, enforced on read and by the
// periodic sweep in main.
package session

import (
	"context"
	"time"

	"warungpos/internal/domain"
)

// Store is the conversation session gateway. Get returns (nil, nil) when no
// live session exists for the phone; expired sessions read as absent.
type Store interface {
	Get(ctx context.Context, phone string) (*domain.CustomerSession, error)
	Save(ctx context.Context, session *domain.CustomerSession) error
	Clear(ctx context.Context, phone string) error
	ListActive(ctx context.Context) ([]domain.CustomerSession, error)
	// ClearExpired removes sessions idle longer than the store's timeout and
	// returns how many were removed.
	ClearExpired(ctx context.Context) (int, error)
}

// Expired reports whether the session has been idle past the timeout.
func Expired(s *domain.CustomerSession, timeout time.Duration, now time.Time) bool {
	return now.Sub(s.LastActivity) > timeout
}
