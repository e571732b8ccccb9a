// 包 api：集中注册 HTTP API 路由，由主入口挂载到 API_BASE 前缀下
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"city-atlas/internal/catalog"
	"city-atlas/internal/logger"
	"city-atlas/internal/metrics"
	"city-atlas/internal/pipeline"
	"city-atlas/internal/session"
	"city-atlas/internal/view"
)

const (
	tabHeader = "X-Tab-ID"
	tabCookie = "tab_id"
)

type Options struct {
	// 生产环境：不注册标记路由，也不提供 admin 视图
	Production bool
	// SSE 心跳间隔；为零时取 15s，且不超过会话 TTL 的三分之一
	Heartbeat time.Duration
}

type server struct {
	tabs      *session.Registry
	records   *catalog.Store
	opts      Options
	heartbeat time.Duration
}

// 构建并返回 API 路由：除 /healthz 与 /districts 外，所有路由都作用于调用方的标签页
func BuildRoutes(tabs *session.Registry, records *catalog.Store, opts Options) *http.ServeMux {
	s := &server{tabs: tabs, records: records, opts: opts, heartbeat: opts.Heartbeat}
	if s.heartbeat <= 0 {
		s.heartbeat = 15 * time.Second
	}
	// 心跳会刷新标签页的存活时间，间隔必须明显小于 TTL
	if ttl := tabs.TTL(); ttl > 0 && s.heartbeat > ttl/3 {
		s.heartbeat = ttl / 3
	}
	mux := http.NewServeMux()
	handle := func(pattern, route string, h http.HandlerFunc) {
		mux.Handle(pattern, instrument(route, h))
	}
	handle("GET /healthz", "healthz", s.healthz)
	handle("GET /districts", "districts", s.districts)
	handle("GET /cities", "cities", s.cities)
	handle("POST /filters/search", "filters", s.filterSearch)
	handle("POST /filters/district", "filters", s.filterDistrict)
	handle("POST /filters/districts/all", "filters", s.filterAllDistricts)
	handle("POST /filters/region", "filters", s.filterRegion)
	handle("POST /filters/regions/all", "filters", s.filterAllRegions)
	handle("POST /filters/population", "filters", s.filterPopulation)
	handle("POST /sort", "sort", s.sort)
	handle("GET /visited", "visited", s.visited)
	handle("GET /map", "map", s.mapView)
	handle("GET /events", "events", s.events)
	if !opts.Production {
		handle("POST /visited/{id}/toggle", "visited_toggle", s.toggleVisited)
		handle("POST /visited/shown/toggle", "visited_toggle", s.toggleShown)
	}
	return mux
}

// 筛选与排序路由共用的请求体；路由未使用的字段忽略
type viewRequest struct {
	View      string `json:"view"`
	Term      string `json:"term"`
	District  string `json:"district"`
	Region    string `json:"region"`
	Min       *int64 `json:"min"`
	Max       *int64 `json:"max"`
	Column    string `json:"column"`
	Direction string `json:"direction"`
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "cities": s.records.Len(), "tabs": s.tabs.Len()})
}

func (s *server) districts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"districts": s.records.Districts()})
}

func (s *server) cities(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tab(w, r)
	if !ok {
		return
	}
	c, ok := s.view(w, t, r.URL.Query().Get("view"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot(r.Context()))
}

// 解析请求体，对目标视图执行 fn，并返回最新快照
func (s *server) mutate(w http.ResponseWriter, r *http.Request, fn func(*view.Catalog, viewRequest) error) {
	var req viewRequest
	// 空请求体（无论是否分块传输）视为空请求
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.View == "" {
		req.View = r.URL.Query().Get("view")
	}
	t, ok := s.tab(w, r)
	if !ok {
		return
	}
	c, ok := s.view(w, t, req.View)
	if !ok {
		return
	}
	if err := fn(c, req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot(r.Context()))
}

func (s *server) filterSearch(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(c *view.Catalog, req viewRequest) error {
		c.SetSearch(req.Term)
		return nil
	})
}

func (s *server) filterDistrict(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(c *view.Catalog, req viewRequest) error {
		if req.District == "" {
			return errors.New("district required")
		}
		c.ToggleDistrict(req.District)
		return nil
	})
}

func (s *server) filterAllDistricts(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(c *view.Catalog, _ viewRequest) error {
		c.ToggleAllDistricts()
		return nil
	})
}

func (s *server) filterRegion(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(c *view.Catalog, req viewRequest) error {
		if req.Region == "" {
			return errors.New("region required")
		}
		c.ToggleRegion(req.Region)
		return nil
	})
}

func (s *server) filterAllRegions(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(c *view.Catalog, _ viewRequest) error {
		c.ToggleAllRegions()
		return nil
	})
}

func (s *server) filterPopulation(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(c *view.Catalog, req viewRequest) error {
		c.SetPopulation(req.Min, req.Max)
		return nil
	})
}

// 未指定方向时等同于点击表头切换
func (s *server) sort(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(c *view.Catalog, req viewRequest) error {
		col, err := pipeline.ParseColumn(req.Column)
		if err != nil {
			return err
		}
		if req.Direction == "" {
			c.SortBy(col)
			return nil
		}
		dir, err := pipeline.ParseDirection(req.Direction)
		if err != nil {
			return err
		}
		c.SetSort(pipeline.SortState{Column: col, Direction: dir})
		return nil
	})
}

func (s *server) visited(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tab(w, r)
	if !ok {
		return
	}
	set := t.Visited(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"ids": set, "count": set.Len(), "total": s.records.Len()})
}

func (s *server) toggleVisited(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tab(w, r)
	if !ok {
		return
	}
	id := catalog.ParseID(r.PathValue("id"))
	now, err := t.Admin.ToggleVisited(r.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "city not found")
		return
	}
	if err != nil {
		logger.L().Error("visited_toggle_error", "tab", t.ID, "id", id.String(), "err", err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "visited": now})
}

func (s *server) toggleShown(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tab(w, r)
	if !ok {
		return
	}
	marked, err := t.Admin.ToggleShown(r.Context())
	if err != nil {
		logger.L().Error("visited_toggle_shown_error", "tab", t.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"marked": marked, "snapshot": t.Admin.Snapshot(r.Context())})
}

func (s *server) mapView(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tab(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, t.Map.Snapshot(r.Context()))
}

// 选择目录视图控制器；生产环境下 admin 视图不存在
func (s *server) view(w http.ResponseWriter, t *view.Tab, name string) (*view.Catalog, bool) {
	if s.opts.Production && name == view.AdminView {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	c, ok := t.View(name)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown view")
		return nil, false
	}
	return c, true
}

// 文档注释：解析调用方标签页
// 顺序：X-Tab-ID 头、tab 参数、tab_id Cookie；均缺失时签发新的 id Cookie
func (s *server) tab(w http.ResponseWriter, r *http.Request) (*view.Tab, bool) {
	id := r.Header.Get(tabHeader)
	if id == "" {
		id = r.URL.Query().Get("tab")
	}
	if id == "" {
		if ck, err := r.Cookie(tabCookie); err == nil {
			id = ck.Value
		}
	}
	if id != "" && !validTabID(id) {
		writeError(w, http.StatusBadRequest, "invalid tab id")
		return nil, false
	}
	if id == "" {
		id = uuid.NewString()
		http.SetCookie(w, &http.Cookie{Name: tabCookie, Value: id, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	}
	w.Header().Set(tabHeader, id)
	t, err := s.tabs.Get(id, clientIP(r))
	if err != nil {
		logger.L().Error("tab_open_error", "tab", id, "err", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return nil, false
	}
	return t, true
}

func validTabID(id string) bool {
	if len(id) > 64 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// 记录状态码供请求指标使用
type recorder struct {
	http.ResponseWriter
	status int
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &recorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(start).Microseconds()) / 1000)
	})
}
