package catalog

import (
	"sort"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// 人口缺失时的显示占位符
const PopulationPlaceholder = "—"

// Collator 内部持有缓冲区，不能在 goroutine 间共享
var collators = sync.Pool{
	New: func() any { return collate.New(language.Russian, collate.IgnoreCase) },
}

// 按俄语排序规则比较两个字符串，忽略大小写
func Compare(a, b string) int {
	c := collators.Get().(*collate.Collator)
	defer collators.Put(c)
	return c.CompareString(a, b)
}

// 使用 Compare 原地排序
func SortStrings(ss []string) {
	sort.SliceStable(ss, func(i, j int) bool { return Compare(ss[i], ss[j]) < 0 })
}

// 按 ru-RU 数字分组格式化人口
func FormatPopulation(p *int64) string {
	if p == nil {
		return PopulationPlaceholder
	}
	return message.NewPrinter(language.Russian).Sprintf("%d", *p)
}
