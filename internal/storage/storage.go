// 包 storage：所有标签页共用的键值存储
// 约束：整值写入，后写覆盖；每次写入产生一个其他写入方可订阅的变更 Event
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config.Driver 不受支持
var ErrUnknownDriver = errors.New("storage: unknown driver")

// 后端已关闭
var ErrClosed = errors.New("storage: closed")

// 文档注释：Writer 写入或删除了 Key；不携带值，接收方自行读取当前值
// NOTE: Key 为空表示可能丢失了变更（例如重连后），任何 key 都可能过期
type Event struct {
	Key    string `json:"key"`
	Writer string `json:"writer"`
}

// 存储驱动；订阅方会收到所有写入方（包括自己）的事件，由 Area 负责过滤
type Backend interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value, writer string) error
	Delete(ctx context.Context, key, writer string) error
	// 注册 fn，直到调用 cancel 或 ctx 结束；fn 可能在任意 goroutine 上运行，不得长时间阻塞
	Subscribe(ctx context.Context, fn func(Event)) (cancel func(), err error)
	Close() error
}

type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverRedis    Driver = "redis"
	DriverPostgres Driver = "postgres"
)

// 选择并配置驱动；redis 与 postgres 客户端由调用方打开并持有
type Config struct {
	Driver Driver

	SQLitePath   string
	PollInterval time.Duration

	Redis        *redis.Client
	RedisChannel string
	RedisPrefix  string

	Postgres    *sql.DB
	PostgresDSN string
}

// 返回 cfg.Driver 指定的后端；为空时使用 sqlite
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite, "":
		return OpenSQLite(ctx, cfg.SQLitePath, cfg.PollInterval)
	case DriverRedis:
		if cfg.Redis == nil {
			return nil, errors.New("storage: redis driver needs a client")
		}
		return OpenRedis(ctx, cfg.Redis, cfg.RedisChannel, cfg.RedisPrefix)
	case DriverPostgres:
		if cfg.Postgres == nil {
			return nil, errors.New("storage: postgres driver needs a database")
		}
		return OpenPostgres(ctx, cfg.Postgres, cfg.PostgresDSN)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
}

// 各驱动共用的订阅表；publish 先复制处理函数列表，再在锁外调用
type hub struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]func(Event)
}

func (h *hub) subscribe(ctx context.Context, fn func(Event)) func() {
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[uint64]func(Event))
	}
	h.next++
	id := h.next
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
	stop := context.AfterFunc(ctx, cancel)
	return func() {
		stop()
		cancel()
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	fns := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
