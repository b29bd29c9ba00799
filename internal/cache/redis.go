package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/terminbooking/config"
	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/redis/go-redis/v9"
)

// releaseLockScript deletes the lock only while it still belongs to the
// caller, so an owner whose TTL lapsed cannot free a successor's lock.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// assignPrefixScript returns the letter mapped to a service, assigning the
// first unused letter A-Z atomically when there is none yet.
var assignPrefixScript = redis.NewScript(`
local existing = redis.call("HGET", KEYS[1], ARGV[1])
if existing then
	return existing
end
local used = {}
for _, v in ipairs(redis.call("HVALS", KEYS[1])) do
	used[v] = true
end
local letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
local prefix = "A"
for i = 1, #letters do
	local c = string.sub(letters, i, i)
	if not used[c] then
		prefix = c
		break
	end
end
redis.call("HSET", KEYS[1], ARGV[1], prefix)
return prefix
`)

type RedisCache struct {
	client   *redis.Client
	slotsTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, slotsTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:   redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		slotsTTL: slotsTTL,
	}
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, slotsTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, slotsTTL: slotsTTL}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// AcquireSlotLock is an atomic set-if-absent with expiry. It reports false
// when another admission holds the lock.
func (c *RedisCache) AcquireSlotLock(ctx context.Context, key domain.SlotKey, owner string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, slotLockKey(key), owner, ttl).Result()
}

func (c *RedisCache) ReleaseSlotLock(ctx context.Context, key domain.SlotKey, owner string) error {
	return releaseLockScript.Run(ctx, c.client, []string{slotLockKey(key)}, owner).Err()
}

// GetSlots returns cached availability for a day. A miss is (nil, false, nil).
func (c *RedisCache) GetSlots(ctx context.Context, locationID, serviceID, day string) ([]domain.Slot, bool, error) {
	data, err := c.client.Get(ctx, slotsKey(locationID, serviceID, day)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var slots []domain.Slot
	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, false, err
	}
	return slots, true, nil
}

func (c *RedisCache) SetSlots(ctx context.Context, locationID, serviceID, day string, slots []domain.Slot) error {
	payload, err := json.Marshal(slots)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, slotsKey(locationID, serviceID, day), payload, c.slotsTTL).Err()
}

func (c *RedisCache) InvalidateSlots(ctx context.Context, locationID, serviceID, day string) error {
	return c.client.Del(ctx, slotsKey(locationID, serviceID, day)).Err()
}

// TicketPrefix resolves the stable letter of a service at a location.
func (c *RedisCache) TicketPrefix(ctx context.Context, locationID, serviceID string) (string, error) {
	return assignPrefixScript.Run(ctx, c.client, []string{prefixMapKey(locationID)}, serviceID).Text()
}

// NextTicketSequence increments the per-day counter of (location, prefix).
// The counter expires an hour after the day it counts has ended.
func (c *RedisCache) NextTicketSequence(ctx context.Context, locationID, prefix string, day time.Time) (int64, error) {
	key := sequenceKey(locationID, prefix, day)
	y, m, d := day.Date()
	expireAt := time.Date(y, m, d+1, 1, 0, 0, 0, day.Location())

	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, expireAt)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment ticket sequence: %w", err)
	}
	return incr.Val(), nil
}

// Publish sends a JSON message on a pub/sub channel.
func (c *RedisCache) Publish(ctx context.Context, channel string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, channel, payload).Err()
}

func slotLockKey(k domain.SlotKey) string {
	return fmt.Sprintf("lock:slot:%s:%s:%d", k.LocationID, k.ServiceID, k.Start.Unix())
}

func slotsKey(locationID, serviceID, day string) string {
	return fmt.Sprintf("slots:%s:%s:%s", locationID, serviceID, day)
}

func prefixMapKey(locationID string) string {
	return "queue:prefix_map:" + locationID
}

func sequenceKey(locationID, prefix string, day time.Time) string {
	return fmt.Sprintf("queue:seq:%s:%s:%s", locationID, prefix, day.Format(time.DateOnly))
}
