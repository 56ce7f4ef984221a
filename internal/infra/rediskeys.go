package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "aqlhr"

	redisKeyRateLimit = RedisNamespace + ":ratelimit"
)

// RateLimitKey - счетчик фиксированного окна для пары (тенант, ключ).
// window = floor(now / windowLength), поэтому окна не пересекаются и ничего не переносится.
func RateLimitKey(tenantID, keyID string, window int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", redisKeyRateLimit, tenantID, keyID, window)
}

// RateLimitPattern - все окна пары (тенант, ключ), для сброса из консоли
func RateLimitPattern(tenantID, keyID string) string {
	return fmt.Sprintf("%s:%s:%s:*", redisKeyRateLimit, tenantID, keyID)
}
