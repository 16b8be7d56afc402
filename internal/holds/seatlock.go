package holds

import (
	"context"
	"fmt"
	"sort"
	"time"

	"seatly/internal/shared/constants"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SeatLocker serializes concurrent admission for overlapping seat sets. The
// lock guards only the conflict-check critical section; it is not the hold.
type SeatLocker interface {
	AcquireAll(ctx context.Context, venueID uuid.UUID, seatIDs []uuid.UUID, ttl time.Duration) (owner string, err error)
	ReleaseAll(ctx context.Context, venueID uuid.UUID, seatIDs []uuid.UUID, owner string) error
}

// RedisSeatLock implements SeatLocker with a Lua script that takes every
// per-seat key or none, so two requests over intersecting seat sets can never
// interleave their conflict checks.
type RedisSeatLock struct {
	redis *redis.Client
}

// NewRedisSeatLock creates a Redis-backed seat-set lock
func NewRedisSeatLock(redisClient *redis.Client) *RedisSeatLock {
	return &RedisSeatLock{redis: redisClient}
}

// Lua script for atomic seat-set locking - prevents race conditions
const luaAcquireSeatSet = `
-- KEYS[1..N] = seat lock keys (caller sorts them)
-- ARGV[1] = owner token
-- ARGV[2] = ttl milliseconds

local owner = ARGV[1]
local ttl = tonumber(ARGV[2])

-- All keys must be free; otherwise take nothing
for i = 1, #KEYS do
    if redis.call("EXISTS", KEYS[i]) == 1 then
        return {0, KEYS[i]}
    end
end

for i = 1, #KEYS do
    redis.call("SET", KEYS[i], owner, "PX", ttl)
end

return {1, "success"}
`

// Lua script for owner-checked release; keys locked by someone else are left alone
const luaReleaseSeatSet = `
-- KEYS[1..N] = seat lock keys
-- ARGV[1] = owner token

local released = 0
for i = 1, #KEYS do
    if redis.call("GET", KEYS[i]) == ARGV[1] then
        redis.call("DEL", KEYS[i])
        released = released + 1
    end
end

return released
`

// AcquireAll locks the whole seat set or nothing. Keys are sorted before the
// script runs so intersecting requests always collide instead of deadlocking.
func (l *RedisSeatLock) AcquireAll(ctx context.Context, venueID uuid.UUID, seatIDs []uuid.UUID, ttl time.Duration) (string, error) {
	if l.redis == nil {
		return "", fmt.Errorf("redis client not available")
	}

	owner := uuid.NewString()
	keys := lockKeys(venueID, seatIDs)
	args := []interface{}{owner, ttl.Milliseconds()}

	result, err := l.redis.EvalSha(ctx, luaAcquireSeatSet, keys, args...).Result()
	if err != nil {
		// If script is not loaded, try to load and execute
		result, err = l.redis.Eval(ctx, luaAcquireSeatSet, keys, args...).Result()
		if err != nil {
			return "", fmt.Errorf("failed to execute seat-set lock: %w", err)
		}
	}

	resultArray, ok := result.([]interface{})
	if !ok || len(resultArray) != 2 {
		return "", fmt.Errorf("unexpected result format from Lua script")
	}

	success, ok := resultArray[0].(int64)
	if !ok {
		return "", fmt.Errorf("invalid success flag in Lua script result")
	}

	if success == 0 {
		return "", ErrSeatLockBusy
	}

	return owner, nil
}

// ReleaseAll frees the seat-set lock if still owned; safe after lock expiry.
func (l *RedisSeatLock) ReleaseAll(ctx context.Context, venueID uuid.UUID, seatIDs []uuid.UUID, owner string) error {
	if l.redis == nil {
		return fmt.Errorf("redis client not available")
	}

	keys := lockKeys(venueID, seatIDs)

	_, err := l.redis.EvalSha(ctx, luaReleaseSeatSet, keys, owner).Result()
	if err != nil {
		_, err = l.redis.Eval(ctx, luaReleaseSeatSet, keys, owner).Result()
		if err != nil {
			return fmt.Errorf("failed to release seat-set lock: %w", err)
		}
	}

	return nil
}

// PreloadScripts loads Lua scripts into Redis for better performance
func (l *RedisSeatLock) PreloadScripts(ctx context.Context) error {
	if l.redis == nil {
		return fmt.Errorf("redis client not available")
	}

	if _, err := l.redis.ScriptLoad(ctx, luaAcquireSeatSet).Result(); err != nil {
		return fmt.Errorf("failed to load seat-set acquire script: %w", err)
	}
	if _, err := l.redis.ScriptLoad(ctx, luaReleaseSeatSet).Result(); err != nil {
		return fmt.Errorf("failed to load seat-set release script: %w", err)
	}

	return nil
}

// lockKeys builds the sorted per-seat lock keys for a request
func lockKeys(venueID uuid.UUID, seatIDs []uuid.UUID) []string {
	keys := make([]string, 0, len(seatIDs))
	for _, seatID := range seatIDs {
		keys = append(keys, constants.SeatLockKey(venueID, seatID))
	}
	sort.Strings(keys)
	return keys
}
