package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// versionRecord 对应索引负载中的一行 JSON，未知字段忽略。
type versionRecord struct {
	Vers   string `json:"vers"`
	Yanked bool   `json:"yanked"`
}

// LatestAcceptable 在换行分隔的索引记录中选出语义化版本排序下的最大
// 可用版本。被 yank 的记录丢弃；预发布版本仅在 allowPrerelease 时参选。
// 空行跳过，任何一行解析失败都是该 crate 的硬错误——静默跳过可能漏掉
// 关键记录。过滤后无剩余记录返回 *NoCandidateError。
func LatestAcceptable(crate, body string, allowPrerelease bool) (*semver.Version, error) {
	var best *semver.Version

	for i, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var rec versionRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("parse index line %d for %s: %w", i+1, crate, err)
		}
		if rec.Yanked {
			continue
		}

		v, err := semver.StrictNewVersion(rec.Vers)
		if err != nil {
			return nil, fmt.Errorf("parse version %q for %s: %w", rec.Vers, crate, err)
		}
		if v.Prerelease() != "" && !allowPrerelease {
			continue
		}

		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}

	if best == nil {
		return nil, &NoCandidateError{Crate: crate}
	}
	return best, nil
}
