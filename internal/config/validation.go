package config

import (
	"errors"
	"net/url"
	"time"
)

// Validate 针对语义级别做进一步校验，防止非法配置触发网络请求。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	parsed, err := url.Parse(c.RegistryURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return newFieldError("RegistryURL", "必须是 http(s) 地址")
	}
	if c.CachePath == "" {
		return newFieldError("CachePath", "不能为空")
	}
	if c.Concurrency < 1 || c.Concurrency > 64 {
		return newFieldError("Concurrency", "必须在 1-64")
	}
	if c.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("UpstreamTimeout", "必须大于 0")
	}
	window := c.BatchWindow.DurationValue()
	if window <= 0 || window > 5*time.Second {
		return newFieldError("BatchWindow", "必须在 (0, 5s] 区间")
	}

	return nil
}
