package dialer

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dialer-platform/pkg/utils"
)

// ChannelLimiter enforces the per-campaign concurrent-channel ceiling. The
// counter lives in redis so every loop instance and the watchdog see one
// shared value.
type ChannelLimiter interface {
	AcquireChannel(ctx context.Context, campaignID int64, limit int) (bool, error)
	ReleaseChannel(ctx context.Context, campaignID int64) error
}

// RedisChannelLimiter counts in-flight channels per campaign with an atomic
// check-and-increment Lua script. The key carries a TTL so a crashed process
// cannot wedge a campaign at its cap forever.
type RedisChannelLimiter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisChannelLimiter(rdb *redis.Client, ttl time.Duration) *RedisChannelLimiter {
	return &RedisChannelLimiter{rdb: rdb, ttl: ttl}
}

func channelKey(campaignID int64) string {
	return fmt.Sprintf("dialer:campaign:%d:channels", campaignID)
}

func (l *RedisChannelLimiter) AcquireChannel(ctx context.Context, campaignID int64, limit int) (bool, error) {
	return utils.AcquireChannelSlot(ctx, l.rdb, channelKey(campaignID), limit, l.ttl)
}

func (l *RedisChannelLimiter) ReleaseChannel(ctx context.Context, campaignID int64) error {
	return utils.ReleaseChannelSlot(ctx, l.rdb, channelKey(campaignID))
}
