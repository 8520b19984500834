package checker

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/crate-radar/crate-radar/internal/registry"
)

// Report 将结果渲染为对齐的差异列表，失败项集中放在末尾的摘要里。
// 返回过期与失败的条目数，供 CLI 决定退出码。
func Report(w io.Writer, results []Result) (outdated, failed int) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CRATE\tREQUIRED\tLATEST\tSTATUS")

	var failures []Result
	for _, res := range results {
		if res.Err != nil {
			failures = append(failures, res)
			continue
		}
		status := "up-to-date"
		if res.Outdated {
			status = "outdated"
			outdated++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", res.Crate, res.Requirement, res.Latest, status)
	}
	_ = tw.Flush()

	if len(failures) > 0 {
		fmt.Fprintf(w, "\n%d crate(s) failed:\n", len(failures))
		for _, res := range failures {
			fmt.Fprintf(w, "  %s: %s\n", res.Crate, describe(res.Err))
		}
	}

	return outdated, len(failures)
}

// describe 把内部错误翻译成面向用户的一句话，保留关键区分度：
// “查到了但没有可用版本”与“根本没拿到数据”必须能分清。
func describe(err error) string {
	var noCandidate *registry.NoCandidateError
	if errors.As(err, &noCandidate) {
		return "registry reachable, but no acceptable version (yanked or prerelease-only)"
	}
	var statusErr *registry.StatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("registry returned status %d", statusErr.Code)
	}
	return err.Error()
}
