// Package cachestore owns the SQLite table that mirrors the latest observed
// index payload per crate. A single worker goroutine holds the database
// handle exclusively; every Load/Save travels through its mailbox and waits
// on a one-shot reply channel, so no lock ever guards the storage layer and
// per-crate writes apply in send order. Commands that arrive close together
// are executed inside one transaction to amortize commit cost.
package cachestore

import (
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// ErrStoreClosed 是调用方唯一可见的失败：worker 已经退出。
// 解析侧应把它当作缓存未命中处理，而不是中断解析。
var ErrStoreClosed = errors.New("cachestore: store already closed")

const createTableStmt = `CREATE TABLE IF NOT EXISTS crates (
	name   TEXT PRIMARY KEY,
	etag   TEXT NOT NULL,
	expiry INTEGER NOT NULL,
	body   TEXT NOT NULL
)`

const upsertStmt = `INSERT INTO crates (name, etag, expiry, body) VALUES (?, ?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET etag = excluded.etag, expiry = excluded.expiry, body = excluded.body`

const selectStmt = `SELECT etag, expiry, body FROM crates WHERE name = ?`

// Entry 是 crates 表中的一行；Body 为注册表返回的原始换行分隔负载。
type Entry struct {
	Name   string
	ETag   string
	Expiry time.Time
	Body   string
}

// Fresh 判断条目在 now 时刻是否仍处于新鲜窗口内。
func (e Entry) Fresh(now time.Time) bool {
	return e.Expiry.After(now)
}

// Store 对外提供异步的 Load/Save，内部由单个 worker 串行落库。
type Store struct {
	db     *sql.DB
	window time.Duration
	logger *logrus.Logger

	cmds chan command
	stop chan struct{}
	done chan struct{}

	closeOnce sync.Once
}

// Open 打开（必要时创建）缓存数据库并启动 worker。
// window 是批量提交的排空窗口，窗口内到达的命令合并进同一个事务。
func Open(path string, window time.Duration, logger *logrus.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// worker 独占连接，避免 SQLite 层面的写冲突。
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTableStmt); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:     db,
		window: window,
		logger: logger,
		cmds:   make(chan command, 64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.worker()
	return s, nil
}

// Close 通知 worker 排空剩余命令并提交，然后等待其退出。
// 多次调用安全；只有第一次会触发关闭流程。
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.stop) })
	<-s.done
	return s.db.Close()
}
