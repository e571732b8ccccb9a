// 包 pipeline：由目录与单个视图的筛选、排序选择计算出该视图显示的行
// 约束：这里全部是纯函数，状态由视图持有
package pipeline

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"city-atlas/internal/catalog"
)

// 无序的分面取值集合
type Set map[string]struct{}

func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s Set) Len() int { return len(s) }

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// 按俄语排序规则列出成员
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	catalog.SortStrings(out)
	return out
}

// 用户在筛选面板中的选择；人口上下限为 nil 表示不限
type FilterState struct {
	Search        string
	Districts     Set
	Regions       Set
	MinPopulation *int64
	MaxPopulation *int64
}

// 深拷贝集合，副本可独立修改
func (f FilterState) Clone() FilterState {
	out := f
	out.Districts = f.Districts.Clone()
	out.Regions = f.Regions.Clone()
	if f.MinPopulation != nil {
		v := *f.MinPopulation
		out.MinPopulation = &v
	}
	if f.MaxPopulation != nil {
		v := *f.MaxPopulation
		out.MaxPopulation = &v
	}
	return out
}

// 一次 Compute 的结果
type Result struct {
	// 在应用地区分面之前得出，不依赖 FilterState.Regions
	AvailableRegions []string
	Filtered         []catalog.City
}

// 文档注释：依次应用联邦区、人口与搜索筛选，从剩余记录得出可用地区，再应用地区分面
//
// 约束：Districts 为空时排除所有带联邦区的城市，而 Regions 为空时不做限制
// NOTE: 两者不对称，需与现有客户端保持兼容
func Compute(records []catalog.City, f FilterState) Result {
	lower := cases.Lower(language.Russian)
	term := lower.String(f.Search)

	pre := make([]catalog.City, 0, len(records))
	regions := NewSet()
	for _, c := range records {
		if !keepDistrict(c, f.Districts) || !keepPopulation(c, f.MinPopulation, f.MaxPopulation) {
			continue
		}
		if term != "" && !matches(lower, c, term) {
			continue
		}
		pre = append(pre, c)
		if r := c.RegionName(); r != "" {
			regions[r] = struct{}{}
		}
	}

	res := Result{AvailableRegions: regions.Sorted(), Filtered: make([]catalog.City, 0, len(pre))}
	for _, c := range pre {
		if keepRegion(c, f.Regions) {
			res.Filtered = append(res.Filtered, c)
		}
	}
	return res
}

func keepDistrict(c catalog.City, selected Set) bool {
	d := c.District()
	return d == "" || selected.Has(d)
}

func keepPopulation(c catalog.City, lo, hi *int64) bool {
	p := c.PopulationOrZero()
	if lo != nil && p < *lo {
		return false
	}
	if hi != nil && p > *hi {
		return false
	}
	return true
}

func keepRegion(c catalog.City, selected Set) bool {
	r := c.RegionName()
	return r == "" || selected.Len() == 0 || selected.Has(r)
}

func matches(lower cases.Caser, c catalog.City, term string) bool {
	for _, field := range [...]string{c.Name, c.RegionName(), c.District()} {
		if field != "" && strings.Contains(lower.String(field), term) {
			return true
		}
	}
	return false
}
