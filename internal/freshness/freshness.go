// Package freshness converts HTTP cache-control response headers into the
// absolute expiry timestamp stored alongside each cached index body. The
// policy is deliberately conservative: any header that is missing or fails to
// parse yields an already-expired timestamp, so the worst outcome of bad
// input is an extra revalidation, never a stale answer.
package freshness

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ComputeExpiry 根据响应到达时刻、Age 与 max-age 计算绝对过期时间。
// hasMaxAge 为 false 表示响应没有可用的 max-age 指令，此时返回 now，
// 即立即过期。剩余新鲜度允许为负，负值同样表示已过期。
func ComputeExpiry(now time.Time, ageSeconds, maxAge int64, hasMaxAge bool) time.Time {
	if !hasMaxAge {
		return now
	}
	remaining := maxAge - ageSeconds
	return now.Add(time.Duration(remaining) * time.Second)
}

// ExpiryFromHeaders 从响应头中提取 Age 与 Cache-Control 并计算过期时间。
func ExpiryFromHeaders(now time.Time, header http.Header) time.Time {
	age := AgeFromHeader(header.Get("Age"))
	maxAge, ok := MaxAgeFromCacheControl(header.Get("Cache-Control"))
	return ComputeExpiry(now, age, maxAge, ok)
}

// AgeFromHeader 解析 Age 头；缺失或非法一律按 0 处理。
func AgeFromHeader(value string) int64 {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return 0
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}

// MaxAgeFromCacheControl 在 Cache-Control 中查找 max-age 指令。
// 指令顺序与大小写不敏感；找不到或解析失败返回 (0, false)。
func MaxAgeFromCacheControl(value string) (int64, bool) {
	for _, directive := range strings.Split(value, ",") {
		directive = strings.TrimSpace(directive)
		key, val, found := strings.Cut(directive, "=")
		if !found || !strings.EqualFold(strings.TrimSpace(key), "max-age") {
			continue
		}
		seconds, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, false
		}
		return seconds, true
	}
	return 0, false
}
