package view

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"city-atlas/internal/catalog"
	"city-atlas/internal/logger"
	"city-atlas/internal/mapview"
	"city-atlas/internal/notify"
	"city-atlas/internal/pipeline"
	"city-atlas/internal/storage"
	"city-atlas/internal/visited"
)

const (
	TableView = "table"
	AdminView = "admin"
)

type TabOptions struct {
	ID         string
	VisitedKey string
	Mode       pipeline.Mode
	Center     orb.Point
	Zoom       int
}

// 文档注释：一个客户端会话，对应浏览器标签页在服务端的副本
// 约束：各视图共用一个 Bus；其他标签页只能通过存储事件影响它
type Tab struct {
	ID      string
	Created time.Time

	area    *storage.Area
	bus     *notify.Bus
	sync    *notify.Sync
	visited *visited.Store

	Table *Catalog
	Admin *Catalog
	Map   *Map

	closeOnce sync.Once
	done      chan struct{}
}

// 在 backend 上打开标签页
// WARNING: ctx 决定存储订阅的生命周期，必须与标签页同寿，不能用单个请求的 ctx
func NewTab(ctx context.Context, backend storage.Backend, records *catalog.Store, opts TabOptions) (*Tab, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("view: tab id required")
	}
	if opts.Zoom <= 0 {
		opts.Zoom = mapview.DefaultZoom
	}
	if opts.VisitedKey == "" {
		opts.VisitedKey = visited.DefaultKey
	}
	if opts.Center == (orb.Point{}) {
		opts.Center = mapview.DefaultCenter
	}
	area := storage.NewArea(backend, opts.ID)
	bus := notify.NewBus()
	s, err := notify.NewSync(ctx, bus, area, opts.VisitedKey)
	if err != nil {
		return nil, fmt.Errorf("tab %s sync: %w", opts.ID, err)
	}
	vs := visited.NewStore(area, s, opts.VisitedKey)
	t := &Tab{
		ID:      opts.ID,
		Created: time.Now(),
		area:    area,
		bus:     bus,
		sync:    s,
		visited: vs,
		done:    make(chan struct{}),
	}
	t.Table = NewCatalog(ctx, records, vs, s, CatalogOptions{Name: TableView, Mode: opts.Mode})
	t.Admin = NewCatalog(ctx, records, vs, s, CatalogOptions{
		Name: AdminView,
		Mode: opts.Mode,
		Sort: pipeline.SortState{Column: pipeline.ColumnName, Direction: pipeline.Ascending},
	})
	layer := mapview.NewLayer()
	t.Map = NewMap(ctx, records, vs, s, layer, opts.Center, opts.Zoom)
	layer.MarkReady()
	logger.L().Debug("tab_open", "tab", t.ID, "center_lat", opts.Center.Lat(), "center_lon", opts.Center.Lon())
	return t, nil
}

// 按名称返回目录控制器
func (t *Tab) View(name string) (*Catalog, bool) {
	switch name {
	case "", TableView:
		return t.Table, true
	case AdminView:
		return t.Admin, true
	}
	return nil, false
}

func (t *Tab) Visited(ctx context.Context) visited.Set { return t.visited.Load(ctx) }

// 订阅到达本标签页的已访问集合信号
func (t *Tab) Subscribe(fn func()) notify.Token { return t.bus.Subscribe(fn) }

func (t *Tab) Unsubscribe(tok notify.Token) { t.bus.Unsubscribe(tok) }

// 标签页关闭时关闭该通道，绑定在标签页上的流随之结束
func (t *Tab) Done() <-chan struct{} { return t.done }

// 断开存储事件，并将各视图从 bus 上移除
func (t *Tab) Close() {
	t.closeOnce.Do(func() {
		t.sync.Close()
		t.Table.Close()
		t.Admin.Close()
		t.Map.Close()
		close(t.done)
		logger.L().Debug("tab_close", "tab", t.ID)
	})
}
