// 包 mapview：根据已访问城市列表驱动地图库的标记集合
package mapview

import (
	"html"
	"strings"

	"github.com/paulmach/orb"

	"city-atlas/internal/catalog"
)

// 默认中心（莫斯科），直到有已访问城市提供更合适的中心
var DefaultCenter = orb.Point{37.6173, 55.7558}

const DefaultZoom = 5

// 单个地图标记的内容
type Marker struct {
	ID         catalog.ID
	Name       string
	Region     string
	Population string
	// 弹出气泡的 HTML 片段
	Balloon string
}

// 构建城市 c 的标记
func MarkerFor(c catalog.City) Marker {
	m := Marker{ID: c.ID, Name: c.Name, Region: c.RegionName()}
	if c.Population != nil {
		m.Population = catalog.FormatPopulation(c.Population)
	}
	var b strings.Builder
	b.WriteString("<strong>")
	b.WriteString(html.EscapeString(c.Name))
	b.WriteString("</strong><br/>")
	if m.Region != "" {
		b.WriteString("<span>")
		b.WriteString(html.EscapeString(m.Region))
		b.WriteString("</span>")
	}
	if m.Population != "" {
		b.WriteString("<br/><span>Население: ")
		b.WriteString(html.EscapeString(m.Population))
		b.WriteString("</span>")
	}
	m.Balloon = b.String()
	return m
}

// 已初始化的地图实例
type Handle interface {
	AddMarker(at orb.Point, m Marker)
	RemoveAllMarkers()
	SetCenter(at orb.Point)
}

// 文档注释：协调器用到的地图库接口
// 约束：Ready 回调可能在任意 goroutine 触发；首个回调之前不得调用 Initialize
type Library interface {
	Ready(fn func())
	Initialize(container string, center orb.Point, zoom int) (Handle, error)
}
