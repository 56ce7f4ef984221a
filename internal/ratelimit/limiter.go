// Package ratelimit - счетчики фиксированного окна на пару (тенант, ключ) в Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/infra"
	"go.uber.org/zap"
)

// checkAndIncrement выполняется в Redis атомарно: проверка порога и инкремент
// не могут перемешаться между конкурентными вызовами. Отклоненный вызов счетчик не увеличивает.
var checkAndIncrement = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if current >= limit then
	return {0, current}
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {1, current}
`)

// Decision - результат проверки лимита
type Decision struct {
	Allowed   bool
	Count     int64
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Limiter struct {
	rdb    redis.UniversalClient
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Limiter)

// WithClock подменяет часы (тесты, переход окна)
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func NewLimiter(rdb redis.UniversalClient, logger *zap.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		rdb:    rdb,
		now:    time.Now,
		logger: logger.Named("ratelimit"),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// windowIndex = floor(now / window)
func windowIndex(now time.Time, window time.Duration) int64 {
	return now.UnixNano() / int64(window)
}

// CheckAndIncrement пропускает вызов, только если он не выводит счетчик окна за limit.
// Сбой хранилища = отказ (fail closed) с InfrastructureError.
func (l *Limiter) CheckAndIncrement(ctx context.Context, tenantID, keyID string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 || window <= 0 {
		return Decision{Limit: limit}, domain.Infra(fmt.Errorf("ratelimit: invalid limit %d per %s", limit, window))
	}

	idx := windowIndex(l.now(), window)
	d := Decision{
		Limit:   limit,
		ResetAt: time.Unix(0, (idx+1)*int64(window)),
	}

	// TTL с запасом: ключ окна больше никогда не читается после его окончания
	ttl := (2 * window).Milliseconds()
	res, err := checkAndIncrement.Run(ctx, l.rdb, []string{infra.RateLimitKey(tenantID, keyID, idx)}, limit, ttl).Int64Slice()
	if err != nil {
		l.logger.Error("rate limit check failed, rejecting",
			zap.String("tenant_id", tenantID),
			zap.String("key_id", keyID),
			zap.Error(err),
		)
		return d, domain.Infra(fmt.Errorf("ratelimit: %w", err))
	}
	if len(res) != 2 {
		return d, domain.Infra(fmt.Errorf("ratelimit: unexpected script reply %v", res))
	}

	d.Allowed = res[0] == 1
	d.Count = res[1]
	d.Remaining = max(limit-int(d.Count), 0)
	return d, nil
}

// Reset удаляет все окна пары (тенант, ключ). Используется из консоли.
func (l *Limiter) Reset(ctx context.Context, tenantID, keyID string) (int64, error) {
	var deleted int64
	iter := l.rdb.Scan(ctx, 0, infra.RateLimitPattern(tenantID, keyID), 100).Iterator()
	for iter.Next(ctx) {
		n, err := l.rdb.Del(ctx, iter.Val()).Result()
		if err != nil {
			return deleted, fmt.Errorf("ratelimit: reset: %w", err)
		}
		deleted += n
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("ratelimit: reset: %w", err)
	}
	return deleted, nil
}
