// 包 visited：持久化的已访问城市列表
package visited

import (
	"encoding/json"

	"city-atlas/internal/catalog"
)

// 已访问列表：保留存储顺序并支持成员查找；id 保持存储时的 JSON 类型
type Set struct {
	ids []catalog.ID
	idx map[catalog.ID]struct{}
}

func NewSet(ids ...catalog.ID) Set {
	var s Set
	for _, id := range ids {
		s.add(id)
	}
	return s
}

func (s Set) Has(id catalog.ID) bool {
	_, ok := s.idx[id]
	return ok
}

func (s Set) Len() int { return len(s.ids) }

// 按存储顺序返回 id
func (s Set) IDs() []catalog.ID { return append([]catalog.ID(nil), s.ids...) }

// 所有 id 是否都在集合中；ids 为空时为 true
func (s Set) HasAll(ids []catalog.ID) bool {
	for _, id := range ids {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

// ids 中有多少在集合中
func (s Set) Count(ids []catalog.ID) int {
	n := 0
	for _, id := range ids {
		if s.Has(id) {
			n++
		}
	}
	return n
}

func (s *Set) add(id catalog.ID) bool {
	if s.Has(id) {
		return false
	}
	if s.idx == nil {
		s.idx = make(map[catalog.ID]struct{})
	}
	s.idx[id] = struct{}{}
	s.ids = append(s.ids, id)
	return true
}

func (s *Set) remove(drop map[catalog.ID]struct{}) int {
	kept := s.ids[:0:0]
	for _, id := range s.ids {
		if _, ok := drop[id]; ok {
			delete(s.idx, id)
			continue
		}
		kept = append(kept, id)
	}
	n := len(s.ids) - len(kept)
	s.ids = kept
	return n
}

// 输出存储使用的数组形式，从不输出 null
func (s Set) MarshalJSON() ([]byte, error) {
	if s.ids == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.ids)
}

// 读取 id 的 JSON 数组；跳过非数字非字符串元素，重复项保留首次出现的位置
func (s *Set) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var out Set
	for _, r := range raw {
		var id catalog.ID
		if err := json.Unmarshal(r, &id); err != nil {
			continue
		}
		out.add(id)
	}
	*s = out
	return nil
}
