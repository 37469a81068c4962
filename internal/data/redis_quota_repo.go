package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// quotaKeyTTL outlives the calendar month the counter belongs to, after
// which the key is garbage.
const quotaKeyTTL = 40 * 24 * time.Hour

// RedisQuotaRepo tracks per-account monthly enrichment consumption in Redis.
// Counters roll over naturally because each calendar month uses its own key.
type RedisQuotaRepo struct {
	client       redis.UniversalClient
	allocation   int64
	timeProvider TimeProvider
}

// NewRedisQuotaRepo creates a quota repo with the given monthly allocation.
func NewRedisQuotaRepo(client redis.UniversalClient, allocation int64, tp TimeProvider) *RedisQuotaRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &RedisQuotaRepo{
		client:       client,
		allocation:   allocation,
		timeProvider: tp,
	}
}

func (r *RedisQuotaRepo) key(owner string) string {
	return fmt.Sprintf("quota:%s:%s", owner, r.timeProvider.Now().UTC().Format("2006-01"))
}

// Remaining returns how many enrichment calls the account may still make
// this month.
func (r *RedisQuotaRepo) Remaining(ctx context.Context, owner string) (int64, error) {
	if owner == "" {
		return 0, errors.New("owner cannot be empty")
	}

	used, err := r.client.Get(ctx, r.key(owner)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return r.allocation, nil
		}
		return 0, fmt.Errorf("redis get quota: %w", err)
	}

	remaining := r.allocation - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Consume records one enrichment call. It reports false once the allocation
// is exhausted and undoes the increment so the counter never drifts past the
// allocation.
func (r *RedisQuotaRepo) Consume(ctx context.Context, owner string) (bool, error) {
	if owner == "" {
		return false, errors.New("owner cannot be empty")
	}

	key := r.key(owner)
	used, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis incr quota: %w", err)
	}

	// First consumer of the month owns setting the expiry.
	if used == 1 {
		if err := r.client.Expire(ctx, key, quotaKeyTTL).Err(); err != nil {
			return false, fmt.Errorf("redis expire quota: %w", err)
		}
	}

	if used > r.allocation {
		if err := r.client.Decr(ctx, key).Err(); err != nil {
			return false, fmt.Errorf("redis decr quota: %w", err)
		}
		return false, nil
	}
	return true, nil
}
