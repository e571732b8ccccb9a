// 包 notify：传递无负载的“已访问集合已变更”信号
// 范围：同一标签页的各视图之间，以及经由存储事件在标签页之间
package notify

import (
	"context"
	"sync"

	"city-atlas/internal/logger"
	"city-atlas/internal/metrics"
	"city-atlas/internal/storage"
)

var _ Notifier = (*Bus)(nil)

// 订阅标识
type Token uint64

type Notifier interface {
	Subscribe(fn func()) Token
	Unsubscribe(t Token)
	NotifyAll()
}

// 文档注释：进程内 Notifier
// 约束：处理函数在锁外同步调用，顺序不保证；处理函数内可以订阅或退订
type Bus struct {
	mu       sync.Mutex
	next     Token
	handlers map[Token]func()
}

func NewBus() *Bus { return &Bus{handlers: make(map[Token]func())} }

func (b *Bus) Subscribe(fn func()) Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.handlers[b.next] = fn
	return b.next
}

// 未知 token 不做任何处理
func (b *Bus) Unsubscribe(t Token) {
	b.mu.Lock()
	delete(b.handlers, t)
	b.mu.Unlock()
}

func (b *Bus) NotifyAll() {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.handlers))
	for _, fn := range b.handlers {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

// 文档注释：连接标签页的 Bus 与其存储 Area
// 背景：写入方持久化后调用 Notify 发出页内信号；其他写入方修改 key 时发出同样的信号
// 约束：接收方始终重新读取持久化的值
type Sync struct {
	bus    *Bus
	key    string
	writer string
	stop   func()
}

func NewSync(ctx context.Context, bus *Bus, area *storage.Area, key string) (*Sync, error) {
	s := &Sync{bus: bus, key: key, writer: area.Writer()}
	stop, err := area.OnChange(ctx, key, func() {
		metrics.SyncSignalsTotal.WithLabelValues("storage").Inc()
		logger.L().Debug("sync_storage_signal", "tab", s.writer, "key", key)
		bus.NotifyAll()
	})
	if err != nil {
		return nil, err
	}
	s.stop = stop
	return s, nil
}

func (s *Sync) Key() string { return s.key }

// 通知本标签页的所有视图
func (s *Sync) Notify() {
	metrics.SyncSignalsTotal.WithLabelValues("local").Inc()
	s.bus.NotifyAll()
}

func (s *Sync) Subscribe(fn func()) Token { return s.bus.Subscribe(fn) }

func (s *Sync) Unsubscribe(t Token) { s.bus.Unsubscribe(t) }

// 断开存储事件；Bus 上的订阅保持不变
func (s *Sync) Close() {
	if s.stop != nil {
		s.stop()
	}
}
