package cachestore

import (
	"database/sql"
	"errors"
	"time"
)

// execQuerier 同时匹配 *sql.Tx 与 *sql.DB；事务开启失败时 worker
// 退化为直接在连接上执行，保证命令总能得到应答。
type execQuerier interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// worker 是唯一接触数据库的 goroutine。空闲时阻塞等待命令；收到第一条
// 命令后开启事务，并在排空窗口内把后续到达的命令并入同一事务，窗口
// 超时后统一提交。收到关闭信号时排空剩余命令、提交并退出。
func (s *Store) worker() {
	defer close(s.done)

	for {
		select {
		case cmd := <-s.cmds:
			if stopped := s.runBatch(cmd); stopped {
				return
			}
		case <-s.stop:
			s.finalDrain()
			return
		}
	}
}

// runBatch 处理一批命令；返回 true 表示批处理期间收到了关闭信号。
func (s *Store) runBatch(first command) bool {
	tx, q := s.begin()
	s.apply(q, first)

	timer := time.NewTimer(s.window)
	defer timer.Stop()

	for {
		select {
		case cmd := <-s.cmds:
			s.apply(q, cmd)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(s.window)
		case <-timer.C:
			s.commit(tx)
			return false
		case <-s.stop:
			s.drainPending(q)
			s.commit(tx)
			return true
		}
	}
}

// finalDrain 在关闭时处理仍在队列里的命令，保证已入队的写不丢失。
func (s *Store) finalDrain() {
	select {
	case cmd := <-s.cmds:
		tx, q := s.begin()
		s.apply(q, cmd)
		s.drainPending(q)
		s.commit(tx)
	default:
	}
}

func (s *Store) drainPending(q execQuerier) {
	for {
		select {
		case cmd := <-s.cmds:
			s.apply(q, cmd)
		default:
			return
		}
	}
}

// begin 开启事务；失败时记日志并退回裸连接执行。
func (s *Store) begin() (*sql.Tx, execQuerier) {
	tx, err := s.db.Begin()
	if err != nil {
		s.logger.WithError(err).Warn("缓存事务开启失败，退回逐条执行")
		return nil, s.db
	}
	return tx, tx
}

func (s *Store) commit(tx *sql.Tx) {
	if tx == nil {
		return
	}
	if err := tx.Commit(); err != nil {
		s.logger.WithError(err).Warn("缓存事务提交失败，本批写入丢弃")
	}
}

// apply 执行单条命令并应答。应答通道都带缓冲，调用方被取消也不会
// 阻塞 worker。
func (s *Store) apply(q execQuerier, cmd command) {
	switch c := cmd.(type) {
	case loadCmd:
		entry, found, err := loadRow(q, c.name)
		if err != nil {
			// 损坏的行或查询失败都按未命中处理，调用方会退化为全量拉取。
			s.logger.WithError(err).WithField("crate", c.name).Warn("缓存读取失败，按未命中处理")
			c.reply <- loadResult{}
			return
		}
		c.reply <- loadResult{entry: entry, found: found}
	case saveCmd:
		if err := upsertRow(q, c.entry); err != nil {
			s.logger.WithError(err).WithField("crate", c.entry.Name).Warn("缓存写入失败，已忽略")
		}
		c.reply <- struct{}{}
	}
}

func loadRow(q execQuerier, name string) (Entry, bool, error) {
	var (
		etag   string
		expiry int64
		body   string
	)
	err := q.QueryRow(selectStmt, name).Scan(&etag, &expiry, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{
		Name:   name,
		ETag:   etag,
		Expiry: time.Unix(expiry, 0),
		Body:   body,
	}, true, nil
}

func upsertRow(q execQuerier, entry Entry) error {
	_, err := q.Exec(upsertStmt, entry.Name, entry.ETag, entry.Expiry.Unix(), entry.Body)
	return err
}
