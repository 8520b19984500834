package registry

import "fmt"

// StatusError 表示注册表返回了协议约定之外的状态码（非 200/304）。
type StatusError struct {
	Crate string
	Code  int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("registry returned status %d for %s", e.Code, e.Crate)
}

// NoCandidateError 表示成功取得索引数据，但过滤后没有任何可用版本
// （全部被 yank，或全是未放行的预发布版本）。与传输错误严格区分，
// 调用方据此能分辨“到达了注册表但无结果”与“根本没连上”。
type NoCandidateError struct {
	Crate string
}

func (e *NoCandidateError) Error() string {
	return fmt.Sprintf("no acceptable version found for %s", e.Crate)
}
