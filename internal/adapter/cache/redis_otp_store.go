package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/otklabs/otk-auth/internal/domain"
	"github.com/otklabs/otk-auth/internal/repository"
)

// RedisOTPStore implements OTPRepository backed by Redis. Entry expiry is
// delegated to Redis key TTLs, so no janitor is needed.
type RedisOTPStore struct {
	client redis.UniversalClient
}

var _ repository.OTPRepository = (*RedisOTPStore)(nil)

// NewRedisOTPStore constructs a Redis-backed OTP store.
func NewRedisOTPStore(client redis.UniversalClient) *RedisOTPStore {
	return &RedisOTPStore{client: client}
}

// Save stores the encoded entry keyed by (namespace, email) with a TTL
// matching its expiry.
func (s *RedisOTPStore) Save(ctx context.Context, ns string, entry domain.OTPEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal otp entry: %w", err)
	}
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := s.client.Set(ctx, otpKey(ns, entry.Email), payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist otp entry: %w", err)
	}
	return nil
}

// Get loads and decodes the pending entry.
func (s *RedisOTPStore) Get(ctx context.Context, ns, email string) (domain.OTPEntry, error) {
	bytes, err := s.client.Get(ctx, otpKey(ns, email)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.OTPEntry{}, domain.ErrOTPNotFound
		}
		return domain.OTPEntry{}, fmt.Errorf("load otp entry: %w", err)
	}
	var entry domain.OTPEntry
	if err := json.Unmarshal(bytes, &entry); err != nil {
		return domain.OTPEntry{}, fmt.Errorf("decode otp entry: %w", err)
	}
	return entry, nil
}

// Delete removes the pending entry.
func (s *RedisOTPStore) Delete(ctx context.Context, ns, email string) error {
	if err := s.client.Del(ctx, otpKey(ns, email)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete otp entry: %w", err)
	}
	return nil
}

func otpKey(ns, email string) string {
	return fmt.Sprintf("otp:%s:%s", ns, email)
}
