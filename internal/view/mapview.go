package view

import (
	"context"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.opentelemetry.io/otel/attribute"

	"city-atlas/internal/catalog"
	"city-atlas/internal/mapview"
	"city-atlas/internal/notify"
	"city-atlas/internal/visited"
)

// 地图页数据：标记、视口与已访问计数
type MapSnapshot struct {
	Ready   bool                       `json:"ready"`
	Center  orb.Point                  `json:"center"`
	Zoom    int                        `json:"zoom"`
	Markers *geojson.FeatureCollection `json:"markers"`
	Visited int                        `json:"visited"`
	Total   int                        `json:"total"`
}

// 地图页控制器；每次同步信号时重新读取已访问集合并协调标记
type Map struct {
	records   *catalog.Store
	visited   *visited.Store
	sync      *notify.Sync
	token     notify.Token
	layer     *mapview.Layer
	rec       *mapview.Reconciler
	container string
	center    orb.Point
	zoom      int

	mu    sync.Mutex
	shown int
}

const mapContainer = "map"

// 将协调器接到 layer 并请求首次协调；layer 就绪前不绘制任何内容
func NewMap(ctx context.Context, records *catalog.Store, vs *visited.Store, s *notify.Sync, layer *mapview.Layer, center orb.Point, zoom int) *Map {
	m := &Map{
		records:   records,
		visited:   vs,
		sync:      s,
		layer:     layer,
		rec:       mapview.NewReconciler(layer, mapContainer, center, zoom),
		container: mapContainer,
		center:    center,
		zoom:      zoom,
	}
	m.rec.Start()
	m.token = s.Subscribe(func() { m.reload(context.Background()) })
	m.reload(ctx)
	return m
}

func (m *Map) reload(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, reloadTimeout)
	defer cancel()
	set := m.visited.Load(ctx)
	shown := m.records.Select(func(c catalog.City) bool { return c.HasCoords() && set.Has(c.ID) })
	m.mu.Lock()
	m.shown = len(shown)
	m.mu.Unlock()
	m.rec.Reconcile(shown)
}

func (m *Map) Ready() bool { return m.rec.Ready() }

func (m *Map) Close() { m.sync.Unsubscribe(m.token) }

func (m *Map) Snapshot(ctx context.Context) MapSnapshot {
	_, span := tracer.Start(ctx, "view.map.snapshot")
	defer span.End()

	m.mu.Lock()
	snap := MapSnapshot{Visited: m.shown, Total: m.records.Len()}
	m.mu.Unlock()

	c, ok := m.layer.Canvas(m.container)
	if !ok {
		snap.Center, snap.Zoom, snap.Markers = m.center, m.zoom, geojson.NewFeatureCollection()
		span.SetAttributes(attribute.Bool("ready", false))
		return snap
	}
	cs := c.Snapshot()
	snap.Ready = true
	snap.Center, snap.Zoom, snap.Markers = cs.Center, cs.Zoom, cs.Markers
	span.SetAttributes(attribute.Bool("ready", true), attribute.Int("markers", len(cs.Markers.Features)))
	return snap
}
