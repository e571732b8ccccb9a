// 包 view：每个标签页的控制器（城市表格、标记页与地图）
// 约束：各控制器持有自己的状态，只通过标签页的 notify.Sync 得知已访问集合的变化
package view

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"city-atlas/internal/catalog"
	"city-atlas/internal/notify"
	"city-atlas/internal/pipeline"
	"city-atlas/internal/visited"
)

var tracer = otel.Tracer("city-atlas/view")

const reloadTimeout = 5 * time.Second

// 一行显示的城市
type Row struct {
	ID             catalog.ID `json:"id"`
	Name           string     `json:"name"`
	Region         string     `json:"region,omitempty"`
	District       string     `json:"district,omitempty"`
	Population     *int64     `json:"population,omitempty"`
	PopulationText string     `json:"population_text"`
	HasCoords      bool       `json:"has_coords"`
	Visited        bool       `json:"visited"`
}

type Counters struct {
	TotalVisited int `json:"total_visited"`
	ShownVisited int `json:"shown_visited"`
	Shown        int `json:"shown"`
	Total        int `json:"total"`
}

// 客户端渲染表格与筛选面板所需的全部数据
type CatalogSnapshot struct {
	View              string             `json:"view"`
	Rows              []Row              `json:"rows"`
	Districts         []string           `json:"districts"`
	AvailableRegions  []string           `json:"available_regions"`
	SelectedDistricts []string           `json:"selected_districts"`
	SelectedRegions   []string           `json:"selected_regions"`
	Search            string             `json:"search"`
	MinPopulation     *int64             `json:"min_population"`
	MaxPopulation     *int64             `json:"max_population"`
	Sort              pipeline.SortState `json:"sort"`
	Counters          Counters           `json:"counters"`
	ActiveFilters     int                `json:"active_filters"`
	AllShownVisited   bool               `json:"all_shown_visited"`
}

// 文档注释：单个表格视图的控制器
// 缓存已访问集合，每次同步信号时刷新
type Catalog struct {
	name    string
	records *catalog.Store
	visited *visited.Store
	sync    *notify.Sync
	token   notify.Token

	mu      sync.Mutex
	cascade *pipeline.Cascade
	sort    pipeline.SortState
	set     visited.Set
}

type CatalogOptions struct {
	Name string
	Mode pipeline.Mode
	Sort pipeline.SortState
}

// 构造时对未筛选的记录执行一次 cascade，首次编辑前地区选择即为全部地区
func NewCatalog(ctx context.Context, records *catalog.Store, vs *visited.Store, s *notify.Sync, opts CatalogOptions) *Catalog {
	c := &Catalog{
		name:    opts.Name,
		records: records,
		visited: vs,
		sync:    s,
		cascade: pipeline.NewCascade(records.Districts(), opts.Mode),
		sort:    opts.Sort,
		set:     vs.Load(ctx),
	}
	c.cascade.Apply(records.All())
	c.token = s.Subscribe(c.reload)
	return c
}

func (c *Catalog) Name() string { return c.name }

func (c *Catalog) reload() {
	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()
	set := c.visited.Load(ctx)
	c.mu.Lock()
	c.set = set
	c.mu.Unlock()
}

// 停止监听已访问集合的变化
func (c *Catalog) Close() { c.sync.Unsubscribe(c.token) }

// 按当前状态执行筛选与排序
func (c *Catalog) Snapshot(ctx context.Context) CatalogSnapshot {
	_, span := tracer.Start(ctx, "view.catalog.snapshot", trace.WithAttributes(attribute.String("view", c.name)))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()
	res := c.cascade.Apply(c.records.All())
	rows := pipeline.Sort(res.Filtered, c.sort)
	st := c.cascade.State()

	snap := CatalogSnapshot{
		View:              c.name,
		Rows:              make([]Row, len(rows)),
		Districts:         c.records.Districts(),
		AvailableRegions:  res.AvailableRegions,
		SelectedDistricts: st.Districts.Sorted(),
		SelectedRegions:   st.Regions.Sorted(),
		Search:            st.Search,
		MinPopulation:     st.MinPopulation,
		MaxPopulation:     st.MaxPopulation,
		Sort:              c.sort,
		ActiveFilters:     c.cascade.ActiveFilters(len(c.records.Districts()), len(res.AvailableRegions)),
	}
	for i, r := range rows {
		v := c.set.Has(r.ID)
		snap.Rows[i] = Row{
			ID:             r.ID,
			Name:           r.Name,
			Region:         r.RegionName(),
			District:       r.District(),
			Population:     r.Population,
			PopulationText: catalog.FormatPopulation(r.Population),
			HasCoords:      r.HasCoords(),
			Visited:        v,
		}
		if v {
			snap.Counters.ShownVisited++
		}
	}
	snap.Counters.TotalVisited = c.set.Len()
	snap.Counters.Shown = len(rows)
	snap.Counters.Total = c.records.Len()
	snap.AllShownVisited = snap.Counters.ShownVisited == len(rows)
	span.SetAttributes(attribute.Int("rows", len(rows)), attribute.Int("available_regions", len(res.AvailableRegions)))
	return snap
}

func (c *Catalog) SetSearch(term string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cascade.SetSearch(term)
}

func (c *Catalog) SetPopulation(lo, hi *int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cascade.SetPopulation(lo, hi)
}

func (c *Catalog) ToggleDistrict(d string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cascade.ToggleDistrict(d)
}

func (c *Catalog) ToggleAllDistricts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cascade.ToggleAllDistricts(c.records.Districts())
}

func (c *Catalog) ToggleRegion(r string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cascade.ToggleRegion(r)
}

// 作用于面板当前提供的地区
func (c *Catalog) ToggleAllRegions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := c.cascade.Apply(c.records.All())
	c.cascade.ToggleAllRegions(res.AvailableRegions)
}

// 点击列头
func (c *Catalog) SortBy(col pipeline.Column) pipeline.SortState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sort = c.sort.Toggle(col)
	return c.sort
}

func (c *Catalog) SetSort(s pipeline.SortState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sort = s
}

// 切换单个城市；拒绝数据集之外的 id
func (c *Catalog) ToggleVisited(ctx context.Context, id catalog.ID) (bool, error) {
	if !c.records.Has(id) {
		return false, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	return c.visited.Toggle(ctx, id)
}

// 标记所有显示中的城市；若已全部标记则全部清除
func (c *Catalog) ToggleShown(ctx context.Context) (bool, error) {
	c.mu.Lock()
	res := c.cascade.Apply(c.records.All())
	ids := make([]catalog.ID, len(res.Filtered))
	for i, r := range res.Filtered {
		ids[i] = r.ID
	}
	c.mu.Unlock()
	return c.visited.ToggleShown(ctx, ids)
}
