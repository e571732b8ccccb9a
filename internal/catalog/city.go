// 包 catalog：只读的城市记录集，其余模块均基于它派生视图
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
)

// 城市的两级行政归属（地区 / 联邦区）
type Region struct {
	Name     string `json:"name"`
	District string `json:"district"`
}

// WGS84 坐标
type Coords struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// 转换为 orb 的经度/纬度顺序
func (c Coords) Point() orb.Point { return orb.Point{c.Lon, c.Lat} }

// 文档注释：坐标解析
// 兼容数字与数字字符串；部分公开城市数据集的坐标带引号
func (c *Coords) UnmarshalJSON(b []byte) error {
	var raw struct {
		Lat json.RawMessage `json:"lat"`
		Lon json.RawMessage `json:"lon"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	lat, err := looseFloat(raw.Lat)
	if err != nil {
		return fmt.Errorf("coords lat: %w", err)
	}
	lon, err := looseFloat(raw.Lon)
	if err != nil {
		return fmt.Errorf("coords lon: %w", err)
	}
	c.Lat, c.Lon = lat, lon
	return nil
}

func looseFloat(b json.RawMessage) (float64, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return 0, fmt.Errorf("missing value")
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return 0, err
		}
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	err := json.Unmarshal(b, &f)
	return f, err
}

// 数据集中的一条城市记录；可选字段缺失时为 nil
type City struct {
	ID         ID      `json:"id"`
	Name       string  `json:"name"`
	Population *int64  `json:"population,omitempty"`
	Region     *Region `json:"region,omitempty"`
	Coords     *Coords `json:"coords,omitempty"`
}

// 无地区时返回空串
func (c City) RegionName() string {
	if c.Region == nil {
		return ""
	}
	return c.Region.Name
}

// 无地区时返回空串
func (c City) District() string {
	if c.Region == nil {
		return ""
	}
	return c.Region.District
}

// 人口缺失按 0 处理，与筛选和排序一致
func (c City) PopulationOrZero() int64 {
	if c.Population == nil {
		return 0
	}
	return *c.Population
}

// 是否可以在地图上标注
func (c City) HasCoords() bool { return c.Coords != nil }
