package visited

import (
	"context"
	"encoding/json"
	"fmt"

	"city-atlas/internal/catalog"
	"city-atlas/internal/logger"
	"city-atlas/internal/metrics"
	"city-atlas/internal/notify"
	"city-atlas/internal/storage"
)

// 已访问列表的存储 key
const DefaultKey = "visitedCities"

// 文档注释：读写单个标签页的已访问列表
// 背景：修改时重新读取存储值，改完后整体写回，不做 compare-and-swap
// WARNING: 两个标签页并发修改时其中一次编辑会丢失，以最后写入为准
type Store struct {
	area *storage.Area
	sync *notify.Sync
	key  string
}

// 将 key 下的列表绑定到 area；sync 可为 nil，此时写入只对其他写入方可见
func NewStore(area *storage.Area, sync *notify.Sync, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{area: area, sync: sync, key: key}
}

func (s *Store) Key() string { return s.key }

// 返回存储的集合；值缺失、读取失败或格式错误时为空集合，错误只记录日志不返回
func (s *Store) Load(ctx context.Context) Set {
	raw, ok, err := s.area.Get(ctx, s.key)
	if err != nil {
		metrics.VisitedLoadErrorsTotal.Inc()
		logger.L().Debug("visited_load_error", "key", s.key, "err", err)
		return Set{}
	}
	if !ok {
		return Set{}
	}
	var set Set
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		metrics.VisitedLoadErrorsTotal.Inc()
		logger.L().Debug("visited_malformed", "key", s.key, "err", err)
		return Set{}
	}
	return set
}

// 切换 id，返回切换后是否已访问
func (s *Store) Toggle(ctx context.Context, id catalog.ID) (bool, error) {
	set := s.Load(ctx)
	now := set.add(id)
	if !now {
		set.remove(map[catalog.ID]struct{}{id: {}})
	}
	if err := s.save(ctx, set, "toggle"); err != nil {
		return false, err
	}
	return now, nil
}

// 将所有 id 标记为已访问，或全部清除
func (s *Store) SetMany(ctx context.Context, ids []catalog.ID, visited bool) error {
	set := s.Load(ctx)
	apply(&set, ids, visited)
	op := "set_many_clear"
	if visited {
		op = "set_many_mark"
	}
	return s.save(ctx, set, op)
}

// “全选显示项”按钮：显示的 id 已全部标记时全部清除，否则全部标记；marked 表示执行的是哪一种
func (s *Store) ToggleShown(ctx context.Context, shown []catalog.ID) (marked bool, err error) {
	set := s.Load(ctx)
	marked = !set.HasAll(shown)
	apply(&set, shown, marked)
	if err := s.save(ctx, set, "toggle_shown"); err != nil {
		return false, err
	}
	return marked, nil
}

// 清空列表
func (s *Store) Clear(ctx context.Context) error {
	return s.save(ctx, Set{}, "clear")
}

func apply(set *Set, ids []catalog.ID, visited bool) {
	if visited {
		for _, id := range ids {
			set.add(id)
		}
		return
	}
	drop := make(map[catalog.ID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	set.remove(drop)
}

func (s *Store) save(ctx context.Context, set Set, op string) error {
	b, err := json.Marshal(set)
	if err != nil {
		return err
	}
	if err := s.area.Set(ctx, s.key, string(b)); err != nil {
		return fmt.Errorf("save visited: %w", err)
	}
	metrics.VisitedWritesTotal.WithLabelValues(op).Inc()
	logger.L().Debug("visited_saved", "tab", s.area.Writer(), "op", op, "count", set.Len())
	if s.sync != nil {
		s.sync.Notify()
	}
	return nil
}
