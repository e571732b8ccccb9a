package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"city-atlas/internal/logger"
)

// id 不在数据集中
var ErrNotFound = errors.New("catalog: city not found")

// 文档注释：只读记录集
// 约束：启动时构建一次，所有标签页共享，之后不再修改
type Store struct {
	cities    []City
	byID      map[ID]int
	districts []string
}

// 复制城市列表构建 Store；重复 id 只保留首条
func NewStore(cities []City) *Store {
	s := &Store{
		cities: make([]City, 0, len(cities)),
		byID:   make(map[ID]int, len(cities)),
	}
	seen := make(map[string]struct{})
	for _, c := range cities {
		if _, dup := s.byID[c.ID]; dup {
			logger.L().Debug("catalog_duplicate_id", "id", c.ID.String(), "name", c.Name)
			continue
		}
		s.byID[c.ID] = len(s.cities)
		s.cities = append(s.cities, c)
		if d := c.District(); d != "" {
			if _, ok := seen[d]; !ok {
				seen[d] = struct{}{}
				s.districts = append(s.districts, d)
			}
		}
	}
	SortStrings(s.districts)
	return s
}

// 按数据集顺序返回全部记录；调用方不得修改切片
func (s *Store) All() []City { return s.cities }

func (s *Store) Len() int { return len(s.cities) }

// 按 id 查找城市
func (s *Store) ByID(id ID) (City, error) {
	i, ok := s.byID[id]
	if !ok {
		return City{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.cities[i], nil
}

// id 是否在数据集中
func (s *Store) Has(id ID) bool {
	_, ok := s.byID[id]
	return ok
}

// 去重后的联邦区列表，按排序规则排列
func (s *Store) Districts() []string {
	return append([]string(nil), s.districts...)
}

// 按数据集顺序返回 keep 接受的记录
func (s *Store) Select(keep func(City) bool) []City {
	var out []City
	for _, c := range s.cities {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// 由 visited.Set 实现
type Membership interface {
	Has(ID) bool
}

// 按数据集顺序返回 id 在 set 中的记录；数据集未知的 id 忽略
func (s *Store) Visited(set Membership) []City {
	return s.Select(func(c City) bool { return set.Has(c.ID) })
}

// 解析城市 JSON 数组
func LoadJSON(r io.Reader) ([]City, error) {
	var cities []City
	if err := json.NewDecoder(r).Decode(&cities); err != nil {
		return nil, fmt.Errorf("decode cities: %w", err)
	}
	return cities, nil
}

// 从 JSON 文件读取数据集
func LoadFile(path string) ([]City, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cities, err := LoadJSON(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.L().Debug("catalog_file_loaded", "path", path, "count", len(cities))
	return cities, nil
}
