package logging

import "github.com/sirupsen/logrus"

// RunFields 构建 action + 清单路径 + 运行 ID 等基础字段，便于不同入口复用。
func RunFields(action, manifestPath, runID string) logrus.Fields {
	return logrus.Fields{
		"action":   action,
		"manifest": manifestPath,
		"run_id":   runID,
	}
}

// CrateFields 提供 crate/缓存状态字段，供每次解析的日志复用。
func CrateFields(crate, cacheState string) logrus.Fields {
	return logrus.Fields{
		"crate":       crate,
		"cache_state": cacheState,
	}
}
