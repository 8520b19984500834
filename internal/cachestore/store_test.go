package cachestore

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.sqlite3")
	store, err := Open(path, 20*time.Millisecond, discardLogger())
	if err != nil {
		t.Fatalf("打开缓存库失败: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	want := Entry{
		Name:   "serde",
		ETag:   `"abc123"`,
		Expiry: time.Unix(1700000000, 0),
		Body:   `{"vers":"1.0.0","yanked":false}`,
	}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save 失败: %v", err)
	}

	got, found, err := store.Load(ctx, "serde")
	if err != nil {
		t.Fatalf("load 失败: %v", err)
	}
	if !found {
		t.Fatalf("刚写入的条目应当命中")
	}
	if got.ETag != want.ETag || got.Body != want.Body || !got.Expiry.Equal(want.Expiry) {
		t.Fatalf("往返结果不一致: %+v", got)
	}
}

func TestSaveOverwritesPreviousEntry(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first := Entry{Name: "tokio", ETag: `"v1"`, Expiry: time.Unix(100, 0), Body: "old"}
	second := Entry{Name: "tokio", ETag: `"v2"`, Expiry: time.Unix(200, 0), Body: "new"}

	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("第一次 save 失败: %v", err)
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("第二次 save 失败: %v", err)
	}

	got, found, err := store.Load(ctx, "tokio")
	if err != nil || !found {
		t.Fatalf("load 失败: %v / found=%v", err, found)
	}
	if got.ETag != `"v2"` || got.Body != "new" || !got.Expiry.Equal(time.Unix(200, 0)) {
		t.Fatalf("upsert 应只保留第二次写入: %+v", got)
	}
}

func TestLoadMissingKey(t *testing.T) {
	store, _ := newTestStore(t)

	_, found, err := store.Load(context.Background(), "no-such-crate")
	if err != nil {
		t.Fatalf("未命中不应返回错误: %v", err)
	}
	if found {
		t.Fatalf("不存在的 key 不应命中")
	}
}

func TestBatchedSavesAllVisible(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	names := []string{"anyhow", "clap", "rand", "regex", "syn"}
	for i, name := range names {
		entry := Entry{Name: name, ETag: `"e"`, Expiry: time.Unix(int64(i), 0), Body: name}
		if err := store.Save(ctx, entry); err != nil {
			t.Fatalf("save %s 失败: %v", name, err)
		}
	}

	for _, name := range names {
		got, found, err := store.Load(ctx, name)
		if err != nil || !found {
			t.Fatalf("load %s 失败: %v / found=%v", name, err, found)
		}
		if got.Body != name {
			t.Fatalf("%s 的 body 不一致: %s", name, got.Body)
		}
	}
}

func TestCloseFlushesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.sqlite3")
	store, err := Open(path, 50*time.Millisecond, discardLogger())
	if err != nil {
		t.Fatalf("打开缓存库失败: %v", err)
	}

	entry := Entry{Name: "serde_json", ETag: `"x"`, Expiry: time.Unix(42, 0), Body: "payload"}
	if err := store.Save(context.Background(), entry); err != nil {
		t.Fatalf("save 失败: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close 失败: %v", err)
	}

	reopened, err := Open(path, 50*time.Millisecond, discardLogger())
	if err != nil {
		t.Fatalf("重新打开失败: %v", err)
	}
	defer reopened.Close()

	got, found, err := reopened.Load(context.Background(), "serde_json")
	if err != nil || !found {
		t.Fatalf("关闭前的写入应已落盘: %v / found=%v", err, found)
	}
	if got.Body != "payload" {
		t.Fatalf("落盘内容不一致: %s", got.Body)
	}
}

func TestOperationsAfterClose(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Close(); err != nil {
		t.Fatalf("close 失败: %v", err)
	}

	if err := store.Save(context.Background(), Entry{Name: "x"}); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("关闭后的 save 应返回 ErrStoreClosed，得到 %v", err)
	}
	if _, _, err := store.Load(context.Background(), "x"); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("关闭后的 load 应返回 ErrStoreClosed，得到 %v", err)
	}

	// 再次 Close 不应 panic 或阻塞。
	if err := store.Close(); err == nil {
		t.Logf("重复 close 返回 nil，可接受")
	}
}

func TestFreshWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	fresh := Entry{Expiry: now.Add(time.Minute)}
	stale := Entry{Expiry: now.Add(-time.Minute)}
	boundary := Entry{Expiry: now}

	if !fresh.Fresh(now) {
		t.Fatalf("未到期条目应为新鲜")
	}
	if stale.Fresh(now) {
		t.Fatalf("过期条目不应为新鲜")
	}
	if boundary.Fresh(now) {
		t.Fatalf("恰好到期视为过期")
	}
}
