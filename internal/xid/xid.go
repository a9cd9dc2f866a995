// Package xid generates prefixed entity ids and human-readable order numbers.
package xid

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// OrderNumber builds a human-readable, unique order number like
// WP-20260901-1A2B3C.
func OrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("WP-%s-%s", now.UTC().Format("20060102"), suffix)
}
