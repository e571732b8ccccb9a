package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"city-atlas/internal/logger"
)

// postgres 驱动使用的 LISTEN/NOTIFY 通道
const NotifyChannel = "cityatlas_kv"

// 文档注释：值保存在 kv_store（见 migrate.EnsureSchema）
// 约束：在写事务内调用 pg_notify，监听方只会在提交后收到通知
type Postgres struct {
	hub

	db       *sql.DB
	listener *pq.Listener
	cancel   context.CancelFunc
	g        *errgroup.Group
}

// 在连接池之外基于 dsn 启动 pq.Listener
func OpenPostgres(ctx context.Context, db *sql.DB, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("storage: postgres listener needs a dsn")
	}
	l := pq.NewListener(dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.L().Debug("kv_pg_listener_event", "event", int(ev), "err", err)
		}
	})
	if err := l.Listen(NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}
	wctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(wctx)
	p := &Postgres{db: db, listener: l, cancel: cancel, g: g}
	g.Go(func() error { return p.listen(gctx) })
	logger.L().Debug("kv_pg_open", "channel", NotifyChannel)
	return p, nil
}

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return v, true, nil
}

func (p *Postgres) Set(ctx context.Context, key, value, writer string) error {
	return p.write(ctx, key, writer, `INSERT INTO kv_store(key, value, writer, updated_at) VALUES($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, writer=EXCLUDED.writer, updated_at=now()`,
		key, value, writer)
}

func (p *Postgres) Delete(ctx context.Context, key, writer string) error {
	return p.write(ctx, key, writer, `DELETE FROM kv_store WHERE key = $1`, key)
}

func (p *Postgres) write(ctx context.Context, key, writer, stmt string, args ...any) error {
	msg, err := json.Marshal(Event{Key: key, Writer: writer})
	if err != nil {
		return err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kv begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("kv write %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, string(msg)); err != nil {
		return fmt.Errorf("kv notify %s: %w", key, err)
	}
	return tx.Commit()
}

// 转发通知
// NOTE: 重连后 pq 会发送 nil 通知，此时可能丢失写入，转为不带 key 的事件
func (p *Postgres) listen(ctx context.Context) error {
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-p.listener.Notify:
			if !ok {
				return nil
			}
			var ev Event
			if n != nil {
				if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
					logger.L().Debug("kv_pg_bad_payload", "err", err)
					ev = Event{}
				}
			}
			p.publish(ev)
		case <-ping.C:
			if err := p.listener.Ping(); err != nil {
				logger.L().Debug("kv_pg_ping_error", "err", err)
			}
		}
	}
}

func (p *Postgres) Subscribe(ctx context.Context, fn func(Event)) (func(), error) {
	return p.subscribe(ctx, fn), nil
}

// 停止监听；db 归调用方所有
func (p *Postgres) Close() error {
	p.cancel()
	_ = p.g.Wait()
	return p.listener.Close()
}
