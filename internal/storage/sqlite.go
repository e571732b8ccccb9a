package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite" // 纯 Go sqlite 驱动

	"city-atlas/internal/logger"
)

const (
	defaultSQLitePath = "data/city-atlas.db"
	defaultPoll       = 250 * time.Millisecond
	// 最新一条之外保留的变更日志行数
	sqliteLogKeep = 1000
)

// 文档注释：值保存在可由多个进程共享的文件中
// 背景：每次写入在同一事务内追加 kv_log；轮询协程跟踪日志，其他进程的写入同样会产生事件
type SQLite struct {
	hub

	db     *sql.DB
	path   string
	cancel context.CancelFunc
	g      *errgroup.Group
}

// 打开（必要时创建）path 处的数据库并启动变更轮询；":memory:" 为进程私有数据库
func OpenSQLite(ctx context.Context, path string, poll time.Duration) (*SQLite, error) {
	if path == "" {
		path = defaultSQLitePath
	}
	if poll <= 0 {
		poll = defaultPoll
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// 单连接：":memory:" 按连接隔离，且 sqlite 写入本身串行
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			writer TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS kv_log (
			rev INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL,
			writer TEXT NOT NULL
		)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create kv tables: %w", err)
		}
	}
	var rev int64
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(rev), 0) FROM kv_log`).Scan(&rev); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read kv revision: %w", err)
	}

	wctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(wctx)
	s := &SQLite{db: db, path: path, cancel: cancel, g: g}
	g.Go(func() error { return s.poll(gctx, rev, poll) })
	logger.L().Debug("kv_sqlite_open", "path", path, "rev", rev, "poll_ms", poll.Milliseconds())
	return s, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLite) Set(ctx context.Context, key, value, writer string) error {
	return s.write(ctx, key, writer, `INSERT INTO kv(key, value, writer, updated_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, writer=excluded.writer, updated_at=excluded.updated_at`,
		key, value, writer, time.Now().UnixMilli())
}

func (s *SQLite) Delete(ctx context.Context, key, writer string) error {
	return s.write(ctx, key, writer, `DELETE FROM kv WHERE key = ?`, key)
}

func (s *SQLite) write(ctx context.Context, key, writer, stmt string, args ...any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kv begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("kv write %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO kv_log(key, writer) VALUES(?, ?)`, key, writer); err != nil {
		return fmt.Errorf("kv log %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM kv_log WHERE rev <= (SELECT MAX(rev) FROM kv_log) - ?`, sqliteLogKeep); err != nil {
		return fmt.Errorf("kv log prune: %w", err)
	}
	return tx.Commit()
}

// 跟踪 kv_log；日志已裁剪到最后看到的版本之后时，以不带 key 的事件报告缺口
func (s *SQLite) poll(ctx context.Context, rev int64, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		next, err := s.drain(ctx, rev)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.L().Debug("kv_sqlite_poll_error", "err", err)
			continue
		}
		rev = next
	}
}

func (s *SQLite) drain(ctx context.Context, since int64) (int64, error) {
	rev, evs, err := s.readLog(ctx, since)
	if err != nil {
		return since, err
	}
	// 处理函数复用同一个连接读取，必须先关闭 rows
	for _, ev := range evs {
		s.publish(ev)
	}
	return rev, nil
}

func (s *SQLite) readLog(ctx context.Context, since int64) (int64, []Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT rev, key, writer FROM kv_log WHERE rev > ? ORDER BY rev`, since)
	if err != nil {
		return since, nil, err
	}
	defer func() { _ = rows.Close() }()
	var evs []Event
	rev := since
	for rows.Next() {
		var ev Event
		var r int64
		if err := rows.Scan(&r, &ev.Key, &ev.Writer); err != nil {
			return since, nil, err
		}
		if len(evs) == 0 && r > since+1 {
			evs = append(evs, Event{})
		}
		rev = r
		evs = append(evs, ev)
	}
	if err := rows.Err(); err != nil {
		return since, nil, err
	}
	return rev, evs, nil
}

func (s *SQLite) Subscribe(ctx context.Context, fn func(Event)) (func(), error) {
	return s.subscribe(ctx, fn), nil
}

func (s *SQLite) Close() error {
	s.cancel()
	_ = s.g.Wait()
	return s.db.Close()
}
