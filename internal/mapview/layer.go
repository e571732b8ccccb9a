package mapview

import (
	"errors"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// MarkReady 之前调用 Layer.Initialize 时返回
var ErrNotReady = errors.New("mapview: layer not ready")

// 文档注释：输出 GeoJSON 而非瓦片的 Library 实现
// 约束：只有调用 MarkReady 后才就绪，调用方看到的启动过程与浏览器地图一样是异步的
type Layer struct {
	mu       sync.Mutex
	ready    bool
	waiters  []func()
	canvases map[string]*Canvas
}

func NewLayer() *Layer {
	return &Layer{canvases: make(map[string]*Canvas)}
}

// 已就绪时立即执行 fn，否则排队等待 MarkReady
func (l *Layer) Ready(fn func()) {
	l.mu.Lock()
	if !l.ready {
		l.waiters = append(l.waiters, fn)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	fn()
}

// 切换为就绪并按顺序执行排队的回调
func (l *Layer) MarkReady() {
	l.mu.Lock()
	if l.ready {
		l.mu.Unlock()
		return
	}
	l.ready = true
	ws := l.waiters
	l.waiters = nil
	l.mu.Unlock()
	for _, fn := range ws {
		fn()
	}
}

// 创建（或重置）名为 container 的画布
func (l *Layer) Initialize(container string, center orb.Point, zoom int) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ready {
		return nil, ErrNotReady
	}
	c := &Canvas{container: container, center: center, zoom: zoom}
	l.canvases[container] = c
	return c, nil
}

// 返回已初始化的 container 画布
func (l *Layer) Canvas(container string) (*Canvas, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.canvases[container]
	return c, ok
}

type placed struct {
	at orb.Point
	m  Marker
}

// 一个已初始化的地图
type Canvas struct {
	container string

	mu      sync.RWMutex
	center  orb.Point
	zoom    int
	markers []placed
}

func (c *Canvas) AddMarker(at orb.Point, m Marker) {
	c.mu.Lock()
	c.markers = append(c.markers, placed{at: at, m: m})
	c.mu.Unlock()
}

func (c *Canvas) RemoveAllMarkers() {
	c.mu.Lock()
	c.markers = nil
	c.mu.Unlock()
}

func (c *Canvas) SetCenter(at orb.Point) {
	c.mu.Lock()
	c.center = at
	c.mu.Unlock()
}

// 客户端绘制地图所需的数据
type Snapshot struct {
	Center  orb.Point                  `json:"center"`
	Zoom    int                        `json:"zoom"`
	Markers *geojson.FeatureCollection `json:"markers"`
}

// 按放置顺序将标记输出为 GeoJSON 点
func (c *Canvas) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fc := geojson.NewFeatureCollection()
	for _, p := range c.markers {
		f := geojson.NewFeature(p.at)
		f.ID = p.m.ID
		f.Properties["id"] = p.m.ID
		f.Properties["name"] = p.m.Name
		f.Properties["balloon"] = p.m.Balloon
		if p.m.Region != "" {
			f.Properties["region"] = p.m.Region
		}
		if p.m.Population != "" {
			f.Properties["population"] = p.m.Population
		}
		fc.Append(f)
	}
	return Snapshot{Center: c.center, Zoom: c.zoom, Markers: fc}
}

// 按放置顺序返回标记坐标
func (c *Canvas) Markers() []orb.Point {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]orb.Point, len(c.markers))
	for i, p := range c.markers {
		out[i] = p.at
	}
	return out
}

func (c *Canvas) Center() orb.Point {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.center
}
