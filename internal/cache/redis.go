package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Domenick1991/agrirent/config"
	"github.com/Domenick1991/agrirent/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned when releasing a lease that expired or was taken over.
var ErrLockNotHeld = errors.New("lock not held")

// releaseScript deletes the lease only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// setRulesScript stores the rule set only while the generation the reader
// saw is still current, so a set loaded before an invalidation is dropped.
var setRulesScript = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

type RedisCache struct {
	client   redis.UniversalClient
	rulesTTL time.Duration
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
}

func NewRedisCache(client redis.UniversalClient, rulesTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, rulesTTL: rulesTTL}
}

// GetRules returns the cached rules, nil on a miss, and the current rules
// generation to hand back to SetRules.
func (c *RedisCache) GetRules(ctx context.Context) ([]domain.PricingRule, int64, error) {
	values, err := c.client.MGet(ctx, rulesKey(), rulesGenerationKey()).Result()
	if err != nil {
		return nil, 0, err
	}

	var generation int64
	if raw, ok := values[1].(string); ok {
		if generation, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, 0, fmt.Errorf("parse rules generation: %w", err)
		}
	}

	raw, ok := values[0].(string)
	if !ok {
		return nil, generation, nil
	}
	rules := make([]domain.PricingRule, 0)
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, generation, err
	}
	return rules, generation, nil
}

// SetRules caches rules loaded under generation. It reports false when an
// invalidation happened in between and the rules were not stored.
func (c *RedisCache) SetRules(ctx context.Context, generation int64, rules []domain.PricingRule) (bool, error) {
	if rules == nil {
		rules = []domain.PricingRule{}
	}
	payload, err := json.Marshal(rules)
	if err != nil {
		return false, err
	}
	stored, err := setRulesScript.Run(ctx, c.client,
		[]string{rulesKey(), rulesGenerationKey()},
		strconv.FormatInt(generation, 10), payload, c.rulesTTL.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// InvalidateRules drops the cached set and moves to a new generation.
func (c *RedisCache) InvalidateRules(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, rulesGenerationKey())
		pipe.Del(ctx, rulesKey())
		return nil
	})
	return err
}

// AcquireBookingLock takes a lease on a booking. It returns a release func
// when the lease was taken and ok=false when another holder has it.
func (c *RedisCache) AcquireBookingLock(ctx context.Context, bookingID string, ttl time.Duration) (func(context.Context) error, bool, error) {
	key := bookingLockKey(bookingID)
	token := uuid.NewString()

	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		deleted, err := releaseScript.Run(ctx, c.client, []string{key}, token).Int()
		if err != nil {
			return err
		}
		if deleted == 0 {
			return fmt.Errorf("booking %s: %w", bookingID, ErrLockNotHeld)
		}
		return nil
	}
	return release, true, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func rulesKey() string {
	return "cache:pricing_rules"
}

func rulesGenerationKey() string {
	return "cache:pricing_rules:generation"
}

func bookingLockKey(bookingID string) string {
	return fmt.Sprintf("lock:booking:%s", bookingID)
}
