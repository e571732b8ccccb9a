package mapview

import (
	"sync"

	"github.com/paulmach/orb"

	"city-atlas/internal/catalog"
	"city-atlas/internal/logger"
	"city-atlas/internal/metrics"
)

// 文档注释：使地图标记与带坐标的已访问城市保持一致
// 约束：地图初始化前的请求只保留最新一次，待地图库就绪后再应用
type Reconciler struct {
	lib       Library
	container string
	center    orb.Point
	zoom      int

	mu      sync.Mutex
	started bool
	handle  Handle
	pending []catalog.City
	waiting bool
}

func NewReconciler(lib Library, container string, center orb.Point, zoom int) *Reconciler {
	return &Reconciler{lib: lib, container: container, center: center, zoom: zoom}
}

// 请求地图库在就绪后初始化地图；重复调用无效果
func (r *Reconciler) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()
	r.lib.Ready(r.onReady)
}

func (r *Reconciler) onReady() {
	h, err := r.lib.Initialize(r.container, r.center, r.zoom)
	if err != nil {
		// 保持延迟，后续 Ready 回调仍可完成初始化
		logger.L().Warn("map_init_failed", "container", r.container, "err", err)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handle = h
	logger.L().Debug("map_ready", "container", r.container, "pending", r.waiting)
	if r.waiting {
		r.apply(r.pending)
		r.pending, r.waiting = nil, false
	}
}

// 地图是否已初始化
func (r *Reconciler) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle != nil
}

// 文档注释：为每个带坐标的城市放置一个标记，并以第一个为中心
// 没有这样的城市时中心保持不变；请求被延迟时返回 false
func (r *Reconciler) Reconcile(records []catalog.City) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle == nil {
		r.pending = append([]catalog.City(nil), records...)
		r.waiting = true
		metrics.ReconcileTotal.WithLabelValues("deferred").Inc()
		return false
	}
	r.apply(records)
	return true
}

func (r *Reconciler) apply(records []catalog.City) {
	r.handle.RemoveAllMarkers()
	placed := 0
	for _, c := range records {
		if !c.HasCoords() {
			continue
		}
		at := c.Coords.Point()
		r.handle.AddMarker(at, MarkerFor(c))
		if placed == 0 {
			r.handle.SetCenter(at)
		}
		placed++
	}
	metrics.ReconcileTotal.WithLabelValues("applied").Inc()
	metrics.MarkersPlaced.Observe(float64(placed))
}
