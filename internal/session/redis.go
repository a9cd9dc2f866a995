package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"warungpos/internal/apperr"
	"warungpos/internal/domain"
)

const keyPrefix = "wa:session:"

// RedisStore keeps sessions in redis under wa:session:<phone>. Each Save
// refreshes the key TTL to the idle timeout, so redis evicts abandoned
// sessions on its own; ClearExpired additionally catches sessions whose
// LastActivity is stale but whose key outlived a timeout change.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedisStore(addr string, password string, db int, timeout time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &RedisStore{client: client, timeout: timeout}, nil
}

func (r *RedisStore) Get(ctx context.Context, phone string) (*domain.CustomerSession, error) {
	raw, err := r.client.Get(ctx, keyPrefix+phone).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.System(err, "read session for %s", phone)
	}

	var sess domain.CustomerSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, apperr.System(err, "decode session for %s", phone)
	}
	if Expired(&sess, r.timeout, time.Now().UTC()) {
		_ = r.client.Del(ctx, keyPrefix+phone).Err()
		return nil, nil
	}
	return &sess, nil
}

func (r *RedisStore) Save(ctx context.Context, sess *domain.CustomerSession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return apperr.System(err, "encode session for %s", sess.Phone)
	}
	if err := r.client.Set(ctx, keyPrefix+sess.Phone, raw, r.timeout).Err(); err != nil {
		return apperr.System(err, "write session for %s", sess.Phone)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, phone string) error {
	if err := r.client.Del(ctx, keyPrefix+phone).Err(); err != nil {
		return apperr.System(err, "clear session for %s", phone)
	}
	return nil
}

func (r *RedisStore) ListActive(ctx context.Context) ([]domain.CustomerSession, error) {
	now := time.Now().UTC()
	sessions := make([]domain.CustomerSession, 0, 16)

	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := r.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, apperr.System(err, "read session %s", iter.Val())
		}
		var sess domain.CustomerSession
		if err := json.Unmarshal(raw, &sess); err != nil {
			continue
		}
		if Expired(&sess, r.timeout, now) {
			continue
		}
		sessions = append(sessions, sess)
	}
	if err := iter.Err(); err != nil {
		return nil, apperr.System(err, "scan sessions")
	}
	return sessions, nil
}

func (r *RedisStore) ClearExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	removed := 0

	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := r.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, apperr.System(err, "read session %s", iter.Val())
		}
		var sess domain.CustomerSession
		if err := json.Unmarshal(raw, &sess); err != nil || Expired(&sess, r.timeout, now) {
			if delErr := r.client.Del(ctx, iter.Val()).Err(); delErr == nil {
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, apperr.System(err, "scan sessions")
	}
	return removed, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
