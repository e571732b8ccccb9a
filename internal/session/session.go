// 包 session：维护所有客户端打开的标签页，淘汰空闲标签页
package session

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"city-atlas/internal/logger"
	"city-atlas/internal/metrics"
	"city-atlas/internal/view"
)

// 为 id 创建标签页；clientIP 可能为空
type Opener func(ctx context.Context, id, clientIP string) (*view.Tab, error)

// 文档注释：标签页 id 到存活标签页的映射
// 约束：空闲超过 ttl 或注册表关闭时关闭标签页
type Registry struct {
	base   context.Context
	cancel context.CancelFunc
	open   Opener
	tabs   *cache.Cache
	ttl    time.Duration
	mu     sync.Mutex
}

func NewRegistry(ttl time.Duration, open Opener) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	base, cancel := context.WithCancel(context.Background())
	r := &Registry{base: base, cancel: cancel, open: open, tabs: cache.New(ttl, ttl/2), ttl: ttl}
	r.tabs.OnEvicted(func(id string, v any) {
		if t, ok := v.(*view.Tab); ok {
			t.Close()
		}
		metrics.ActiveTabs.Dec()
		logger.L().Debug("session_evicted", "tab", id)
	})
	return r
}

// 返回 id 对应的标签页，首次使用时打开；每次调用都会续期
func (r *Registry) Get(id, clientIP string) (*view.Tab, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.tabs.Get(id); ok {
		r.tabs.SetDefault(id, v)
		return v.(*view.Tab), nil
	}
	// 过期条目在清理协程运行前仍留在 map 中；此处先淘汰，保证被覆盖的标签页会被关闭
	r.tabs.DeleteExpired()
	t, err := r.open(r.base, id, clientIP)
	if err != nil {
		return nil, err
	}
	r.tabs.SetDefault(id, t)
	metrics.ActiveTabs.Inc()
	logger.L().Debug("session_open", "tab", id, "ip", clientIP)
	return t, nil
}

// 返回已打开的标签页，不创建也不续期
func (r *Registry) Lookup(id string) (*view.Tab, bool) {
	v, ok := r.tabs.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*view.Tab), true
}

// 立即关闭一个标签页
func (r *Registry) Drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tabs.Delete(id)
}

// 标签页空闲多久后关闭
func (r *Registry) TTL() time.Duration { return r.ttl }

func (r *Registry) Len() int { return r.tabs.ItemCount() }

// 关闭所有标签页并结束其存储订阅
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.tabs.Items() {
		r.tabs.Delete(id)
	}
	r.cancel()
}
