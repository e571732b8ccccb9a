package pipeline

import (
	"cmp"
	"fmt"
	"slices"

	"city-atlas/internal/catalog"
)

type Column int

const (
	ColumnNone Column = iota
	ColumnName
	ColumnPopulation
	ColumnRegion
)

var columnNames = [...]string{"none", "name", "population", "region"}

func (c Column) String() string {
	if c < 0 || int(c) >= len(columnNames) {
		return fmt.Sprintf("column(%d)", int(c))
	}
	return columnNames[c]
}

// 接受小写列名；"" 表示不排序
func ParseColumn(s string) (Column, error) {
	if s == "" {
		return ColumnNone, nil
	}
	for i, n := range columnNames {
		if n == s {
			return Column(i), nil
		}
	}
	return ColumnNone, fmt.Errorf("unknown sort column %q", s)
}

func (c Column) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Column) UnmarshalText(b []byte) error {
	v, err := ParseColumn(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "asc":
		return Ascending, nil
	case "desc":
		return Descending, nil
	}
	return Ascending, fmt.Errorf("unknown sort direction %q", s)
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// 表头排序状态；零值保持筛选后的顺序
type SortState struct {
	Column    Column    `json:"column"`
	Direction Direction `json:"direction"`
}

// 点击表头：同一列翻转方向，换列从升序开始
func (s SortState) Toggle(col Column) SortState {
	if s.Column == col {
		if s.Direction == Ascending {
			s.Direction = Descending
		} else {
			s.Direction = Ascending
		}
		return s
	}
	return SortState{Column: col, Direction: Ascending}
}

// 文档注释：返回 records 的稳定排序副本，不修改 records 本身
// 约束：降序通过对比较结果取反实现而非反转输出，两个方向上相等键都保持输入顺序
func Sort(records []catalog.City, s SortState) []catalog.City {
	out := slices.Clone(records)
	if out == nil {
		out = []catalog.City{}
	}
	by := comparator(s.Column)
	if by == nil {
		return out
	}
	sign := 1
	if s.Direction == Descending {
		sign = -1
	}
	slices.SortStableFunc(out, func(a, b catalog.City) int { return sign * by(a, b) })
	return out
}

func comparator(col Column) func(a, b catalog.City) int {
	switch col {
	case ColumnName:
		return func(a, b catalog.City) int { return catalog.Compare(a.Name, b.Name) }
	case ColumnRegion:
		return func(a, b catalog.City) int { return catalog.Compare(a.RegionName(), b.RegionName()) }
	case ColumnPopulation:
		return func(a, b catalog.City) int { return cmp.Compare(a.PopulationOrZero(), b.PopulationOrZero()) }
	}
	return nil
}
