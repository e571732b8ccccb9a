package storage

import "context"

// 文档注释：单个写入方视角下的 Backend，类似浏览器标签页看到的同源存储
// 约束：自己的写入不会以变更事件的形式回到自己
type Area struct {
	backend Backend
	writer  string
}

func NewArea(b Backend, writer string) *Area {
	return &Area{backend: b, writer: writer}
}

func (a *Area) Writer() string { return a.writer }

func (a *Area) Get(ctx context.Context, key string) (string, bool, error) {
	return a.backend.Get(ctx, key)
}

func (a *Area) Set(ctx context.Context, key, value string) error {
	return a.backend.Set(ctx, key, value, a.writer)
}

func (a *Area) Remove(ctx context.Context, key string) error {
	return a.backend.Delete(ctx, key, a.writer)
}

// 其他写入方修改 key，或后端报告可能丢失变更时调用 fn
func (a *Area) OnChange(ctx context.Context, key string, fn func()) (func(), error) {
	return a.backend.Subscribe(ctx, func(ev Event) {
		if ev.Writer == a.writer && ev.Key != "" {
			return
		}
		if ev.Key != "" && ev.Key != key {
			return
		}
		fn()
	})
}
