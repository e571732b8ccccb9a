package pipeline

import (
	"slices"

	"city-atlas/internal/catalog"
)

// 决定 Cascade 何时自动选中全部可用地区
type Mode int

const (
	// 可用地区集合每次变化时，填充空的地区选择
	ReselectOnChange Mode = iota
	// 仅在首次出现可用地区时填充
	ReselectOnce
)

func (m Mode) String() string {
	if m == ReselectOnce {
		return "once"
	}
	return "on_change"
}

// 仅识别 "once"，其余均为 ReselectOnChange
func ParseMode(s string) Mode {
	if s == "once" {
		return ReselectOnce
	}
	return ReselectOnChange
}

// 文档注释：持有单个视图的 FilterState，并以显式的 reducer 步骤应用地区默认规则
// WARNING: 非并发安全
type Cascade struct {
	mode  Mode
	state FilterState

	// Apply 最近一次看到的可用地区；首次 Apply 前为 nil
	available []string
	applied   bool
	// 地区选择被自动填充后置位
	latched bool
}

// 初始状态：选中全部联邦区，不选地区，无搜索词，无人口范围
func NewCascade(districts []string, mode Mode) *Cascade {
	return &Cascade{
		mode: mode,
		state: FilterState{
			Districts: NewSet(districts...),
			Regions:   NewSet(),
		},
	}
}

// 返回当前筛选状态的副本
func (c *Cascade) State() FilterState { return c.state.Clone() }

func (c *Cascade) Mode() Mode { return c.mode }

// 地区选择是否被自动填充过
func (c *Cascade) Latched() bool { return c.latched }

// 文档注释：计算 records 的结果
// 背景：可用地区与上次 Apply 不同且地区选择为空时，选择被设为新的全集（受 mode 的锁存约束）
// 约束：输入不变时重复 Apply 不会改动选择，用户清空的地区选择保持为空
func (c *Cascade) Apply(records []catalog.City) Result {
	res := Compute(records, c.state)
	changed := !c.applied || !slices.Equal(res.AvailableRegions, c.available)
	c.applied = true
	c.available = res.AvailableRegions

	if !changed || c.state.Regions.Len() != 0 || len(res.AvailableRegions) == 0 {
		return res
	}
	if c.mode == ReselectOnce && c.latched {
		return res
	}
	c.state.Regions = NewSet(res.AvailableRegions...)
	c.latched = true
	// 预筛选列表的地区已全部选中，结果行与空选择时相同
	return res
}

func (c *Cascade) SetSearch(term string) { c.state.Search = term }

// 同时替换上下限；允许上下限倒置，此时结果为空
func (c *Cascade) SetPopulation(lo, hi *int64) {
	c.state.MinPopulation, c.state.MaxPopulation = lo, hi
}

func (c *Cascade) ToggleDistrict(d string) { toggle(c.state.Districts, d) }

// 已选中全部联邦区时清空，否则全选
func (c *Cascade) ToggleAllDistricts(all []string) {
	if c.state.Districts.Len() == len(all) {
		c.state.Districts = NewSet()
		return
	}
	c.state.Districts = NewSet(all...)
}

func (c *Cascade) ToggleRegion(r string) { toggle(c.state.Regions, r) }

// 对当前可用地区执行同样的全选切换
func (c *Cascade) ToggleAllRegions(available []string) {
	if c.state.Regions.Len() == len(available) {
		c.state.Regions = NewSet()
		return
	}
	c.state.Regions = NewSet(available...)
}

// 筛选角标上的限制数：联邦区部分选中计一，地区非空且部分选中计一
func (c *Cascade) ActiveFilters(allDistricts, availableRegions int) int {
	n := 0
	if c.state.Districts.Len() != allDistricts {
		n++
	}
	if r := c.state.Regions.Len(); r > 0 && r != availableRegions {
		n++
	}
	return n
}

func toggle(s Set, v string) {
	if s.Has(v) {
		delete(s, v)
		return
	}
	s[v] = struct{}{}
}
