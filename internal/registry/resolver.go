package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"

	"github.com/crate-radar/crate-radar/internal/cachestore"
	"github.com/crate-radar/crate-radar/internal/freshness"
	"github.com/crate-radar/crate-radar/internal/logging"
	"github.com/crate-radar/crate-radar/internal/version"
)

// Store 抽象解析器需要的缓存操作，便于在测试里替换实现。
type Store interface {
	Load(ctx context.Context, name string) (cachestore.Entry, bool, error)
	Save(ctx context.Context, entry cachestore.Entry) error
}

// ResolveOptions 控制单次解析的行为。
type ResolveOptions struct {
	// Force 跳过新鲜度检查，总是全量拉取。
	Force bool
	// AllowPrerelease 允许预发布版本参与最大版本选择。
	AllowPrerelease bool
}

// Resolver 负责单个 crate 的“缓存命中 → revalidate → 全量拉取”决策。
type Resolver struct {
	client  *http.Client
	store   Store
	baseURL string
	logger  *logrus.Logger

	// now 可在测试中替换以固定时钟。
	now func() time.Time
}

// NewResolver 构建解析器；baseURL 形如 https://index.crates.io。
func NewResolver(client *http.Client, store Store, baseURL string, logger *logrus.Logger) *Resolver {
	return &Resolver{
		client:  client,
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		now:     time.Now,
	}
}

// Resolve 返回 crate 在当前过滤条件下的最新可用版本。
// 缓存只是加速器：新鲜窗口内直接用缓存正文，过期则带 If-None-Match
// 条件拉取，缓存层的任何失败都退化为全量拉取，绝不让解析因缓存出错。
func (r *Resolver) Resolve(ctx context.Context, crate string, opts ResolveOptions) (*semver.Version, error) {
	name := strings.ToLower(strings.TrimSpace(crate))
	if name == "" {
		return nil, errors.New("crate name required")
	}

	var (
		cached cachestore.Entry
		hit    bool
	)
	if !opts.Force {
		entry, found, err := r.store.Load(ctx, name)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			// store 已关闭等情况按未命中处理。
			r.logger.WithError(err).WithFields(logging.CrateFields(name, "unavailable")).Debug("缓存查询失败，按未命中处理")
		} else {
			cached, hit = entry, found
		}
	}

	now := r.now()
	if hit && cached.Fresh(now) {
		// 缓存仍新鲜，完全跳过网络。
		r.logger.WithFields(logging.CrateFields(name, "fresh")).Debug("缓存命中")
		return LatestAcceptable(name, cached.Body, opts.AllowPrerelease)
	}

	validator := ""
	if hit && !opts.Force {
		validator = cached.ETag
	}

	resp, err := r.fetch(ctx, name, validator)
	if err != nil {
		return nil, fmt.Errorf("fetch index for %s: %w", name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		// 正文未变，仅用新的响应头刷新过期时间；validator 有新值则更新。
		etag := resp.Header.Get("ETag")
		if etag == "" {
			etag = cached.ETag
		}
		r.saveBestEffort(ctx, cachestore.Entry{
			Name:   name,
			ETag:   etag,
			Expiry: freshness.ExpiryFromHeaders(now, resp.Header),
			Body:   cached.Body,
		})
		r.logger.WithFields(logging.CrateFields(name, "revalidated")).Debug("缓存正文仍然有效")
		return LatestAcceptable(name, cached.Body, opts.AllowPrerelease)

	case http.StatusOK:
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read index body for %s: %w", name, err)
		}
		body := string(raw)
		r.saveBestEffort(ctx, cachestore.Entry{
			Name:   name,
			ETag:   resp.Header.Get("ETag"),
			Expiry: freshness.ExpiryFromHeaders(now, resp.Header),
			Body:   body,
		})
		state := "miss"
		if hit {
			state = "replaced"
		}
		r.logger.WithFields(logging.CrateFields(name, state)).Debug("已拉取最新索引")
		return LatestAcceptable(name, body, opts.AllowPrerelease)

	default:
		return nil, &StatusError{Crate: name, Code: resp.StatusCode}
	}
}

func (r *Resolver) fetch(ctx context.Context, name, validator string) (*http.Response, error) {
	url := r.baseURL + "/" + IndexPath(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "crate-radar/"+version.Version)
	if validator != "" {
		req.Header.Set("If-None-Match", validator)
	}
	return r.client.Do(req)
}

// saveBestEffort 写缓存失败只记日志；丢一次缓存写入不构成解析失败。
func (r *Resolver) saveBestEffort(ctx context.Context, entry cachestore.Entry) {
	if err := r.store.Save(ctx, entry); err != nil {
		r.logger.WithError(err).WithFields(logging.CrateFields(entry.Name, "save_failed")).Debug("缓存写入未完成")
	}
}
