// Package checker fans a dependency list out to the resolver under a fixed
// admission limit and collects one result per crate. A failing crate never
// aborts the run; failures ride along in the result set and are summarized
// at the end.
package checker

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/crate-radar/crate-radar/internal/logging"
	"github.com/crate-radar/crate-radar/internal/manifest"
	"github.com/crate-radar/crate-radar/internal/registry"
)

// VersionSource 抽象按 crate 解析最新版本的能力，便于测试替换。
type VersionSource interface {
	Resolve(ctx context.Context, crate string, opts registry.ResolveOptions) (*semver.Version, error)
}

// Options 控制一次检查运行的并发与解析行为。
type Options struct {
	Concurrency     int64
	Force           bool
	AllowPrerelease bool
}

// Result 是单个 crate 的检查结论；Err 非空时其余字段只保留输入信息。
type Result struct {
	Crate       string
	Requirement string
	Section     string
	Latest      *semver.Version
	Outdated    bool
	Err         error
}

// Run 以受限并发解析全部依赖。单个 crate 的失败彼此独立，所有结果
// 按名字排序返回。ctx 取消时未开始的条目以取消错误收尾。
func Run(ctx context.Context, deps []manifest.Dependency, source VersionSource, logger *logrus.Logger, opts Options) []Result {
	if opts.Concurrency < 1 {
		opts.Concurrency = 8
	}

	runID := uuid.NewString()
	sem := semaphore.NewWeighted(opts.Concurrency)
	results := make([]Result, len(deps))

	var wg sync.WaitGroup
	for i, dep := range deps {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Result{Crate: dep.Name, Requirement: dep.Requirement, Section: dep.Section, Err: err}
			continue
		}

		wg.Add(1)
		go func(i int, dep manifest.Dependency) {
			defer wg.Done()
			defer sem.Release(1)

			res := Result{Crate: dep.Name, Requirement: dep.Requirement, Section: dep.Section}
			latest, err := source.Resolve(ctx, dep.Name, registry.ResolveOptions{
				Force:           opts.Force,
				AllowPrerelease: opts.AllowPrerelease,
			})
			if err != nil {
				res.Err = err
				logger.WithError(err).WithFields(logging.CrateFields(dep.Name, "")).
					WithField("run_id", runID).Warn("解析失败")
			} else {
				res.Latest = latest
				res.Outdated = isOutdated(dep.Requirement, latest)
			}
			results[i] = res
		}(i, dep)
	}
	wg.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].Crate < results[b].Crate })
	return results
}

// isOutdated 判断最新版本是否仍满足清单中的版本约束。Cargo 的裸版本
// 要求（"1.2"）是 caret 语义，这里补上 ^ 前缀后再交给约束求值；
// 无法解析的约束只列出最新版本，不判定为过期。
func isOutdated(requirement string, latest *semver.Version) bool {
	constraint, err := semver.NewConstraint(normalizeRequirement(requirement))
	if err != nil {
		return false
	}
	return !constraint.Check(latest)
}

func normalizeRequirement(requirement string) string {
	parts := strings.Split(requirement, ",")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" && part[0] >= '0' && part[0] <= '9' {
			part = "^" + part
		}
		parts[i] = part
	}
	return strings.Join(parts, ", ")
}
