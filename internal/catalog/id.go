package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// 文档注释：城市标识
// 背景：数据集中的 id 可能是 JSON 数字或字符串
// 约束：持久化的已访问列表必须按原类型写回，因此类型与值一起保存
type ID struct {
	key     string
	numeric bool
}

// 数字类型标识
func IntID(n int64) ID { return ID{key: strconv.FormatInt(n, 10), numeric: true} }

// 字符串类型标识
func StringID(s string) ID { return ID{key: s} }

// 从文本（如 URL 路径段）解析标识：整数为数字 id，其余为字符串 id
func ParseID(s string) ID {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IntID(n)
	}
	return StringID(s)
}

func (id ID) String() string { return id.key }
func (id ID) Numeric() bool  { return id.numeric }
func (id ID) IsZero() bool   { return id.key == "" && !id.numeric }

// 数字 id 输出为数字，其余输出为字符串
func (id ID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return []byte(id.key), nil
	}
	return json.Marshal(id.key)
}

// 接受 JSON 数字或字符串；整数值统一规范化，7 与 7.0 指向同一城市
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return errors.New("catalog: null id")
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("catalog: id must be a number or string: %w", err)
	}
	if n, err := num.Int64(); err == nil {
		*id = IntID(n)
		return nil
	}
	f, err := num.Float64()
	if err != nil {
		return fmt.Errorf("catalog: bad numeric id %q: %w", num, err)
	}
	if f == float64(int64(f)) {
		*id = IntID(int64(f))
		return nil
	}
	*id = ID{key: num.String(), numeric: true}
	return nil
}
