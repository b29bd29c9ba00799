package cache

import (
	"testing"
	"time"

	"github.com/Domenick1991/terminbooking/config"
	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestNewRedisCache(t *testing.T) {
	c := NewRedisCache(config.RedisConfig{Addr: "localhost:6379"}, time.Minute)
	assert.NotNil(t, c)
	assert.Equal(t, time.Minute, c.slotsTTL)
}

func TestKeys(t *testing.T) {
	start := time.Date(2026, time.May, 4, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "lock:slot:loc-1:svc-1:1777885200", slotLockKey(domain.SlotKey{LocationID: "loc-1", ServiceID: "svc-1", Start: start}))

	// The same instant expressed in another zone must map to the same lock.
	berlin, _ := time.LoadLocation("Europe/Berlin")
	assert.Equal(t,
		slotLockKey(domain.SlotKey{LocationID: "loc-1", ServiceID: "svc-1", Start: start}),
		slotLockKey(domain.SlotKey{LocationID: "loc-1", ServiceID: "svc-1", Start: start.In(berlin)}),
	)

	assert.Equal(t, "slots:loc-1:svc-1:2026-05-04", slotsKey("loc-1", "svc-1", "2026-05-04"))
	assert.Equal(t, "queue:prefix_map:loc-1", prefixMapKey("loc-1"))
	assert.Equal(t, "queue:seq:loc-1:B:2026-05-04", sequenceKey("loc-1", "B", start))
}
