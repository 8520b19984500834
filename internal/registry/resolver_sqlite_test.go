package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/crate-radar/crate-radar/internal/cachestore"
)

// 走真实 SQLite actor 的完整闭环：未命中 → 全量拉取落库 → 新鲜命中
// 跳过网络 → 过期后带条件重验证。
func TestResolveFullCycleWithSQLiteStore(t *testing.T) {
	stub := &stubRegistry{
		status: http.StatusOK,
		body:   `{"vers":"1.2.3","yanked":false}`,
		etag:   `"round-one"`,
		header: map[string]string{"Cache-Control": "max-age=3600"},
	}
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	store, err := cachestore.Open(filepath.Join(t.TempDir(), "cache.sqlite3"), 20*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("打开缓存库失败: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	resolver := NewResolver(server.Client(), store, server.URL, testLogger())
	ctx := context.Background()

	// 第一次：未命中，全量拉取并写库。
	v, err := resolver.Resolve(ctx, "serde", ResolveOptions{})
	if err != nil {
		t.Fatalf("首次解析失败: %v", err)
	}
	if v.String() != "1.2.3" || stub.hitCount() != 1 {
		t.Fatalf("首次解析应请求一次并得到 1.2.3: %s / %d", v, stub.hitCount())
	}

	// 第二次：写入的条目带 1h 新鲜窗口，应直接命中，不触网。
	v, err = resolver.Resolve(ctx, "serde", ResolveOptions{})
	if err != nil {
		t.Fatalf("二次解析失败: %v", err)
	}
	if v.String() != "1.2.3" || stub.hitCount() != 1 {
		t.Fatalf("新鲜命中不应再次请求: %s / %d", v, stub.hitCount())
	}

	// 人为把条目改为过期，第三次解析应带 If-None-Match 重验证。
	entry, found, err := store.Load(ctx, "serde")
	if err != nil || !found {
		t.Fatalf("读取条目失败: %v / found=%v", err, found)
	}
	entry.Expiry = time.Now().Add(-time.Minute)
	if err := store.Save(ctx, entry); err != nil {
		t.Fatalf("回写过期时间失败: %v", err)
	}

	stub.mu.Lock()
	stub.status = http.StatusNotModified
	stub.header = map[string]string{"Cache-Control": "max-age=600"}
	stub.mu.Unlock()

	v, err = resolver.Resolve(ctx, "serde", ResolveOptions{})
	if err != nil {
		t.Fatalf("重验证解析失败: %v", err)
	}
	if v.String() != "1.2.3" {
		t.Fatalf("304 后仍应解析出旧正文的版本: %s", v)
	}
	if stub.hitCount() != 2 {
		t.Fatalf("过期条目应触发一次重验证: %d", stub.hitCount())
	}
	if inm, _, _ := stub.lastRequest(); inm != `"round-one"` {
		t.Fatalf("重验证应携带存储的 validator: %q", inm)
	}

	// 重验证写回的新过期时间应再次让条目进入新鲜窗口。
	refreshed, found, err := store.Load(ctx, "serde")
	if err != nil || !found {
		t.Fatalf("读取刷新后的条目失败: %v / found=%v", err, found)
	}
	if !refreshed.Fresh(time.Now()) {
		t.Fatalf("重验证后条目应重新变为新鲜: %v", refreshed.Expiry)
	}
}
