package api

import (
	"fmt"
	"net/http"
	"time"

	"city-atlas/internal/logger"
	"city-atlas/internal/metrics"
)

// 文档注释：SSE 推送已访问列表变更
// 每个到达标签页的信号对应一条 "visited" 事件，仅携带当前数量，客户端自行重新拉取；突发信号合并为一条
func (s *server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	t, ok := s.tab(w, r)
	if !ok {
		return
	}
	ip := clientIP(r)
	signals := make(chan struct{}, 1)
	tok := t.Subscribe(func() {
		select {
		case signals <- struct{}{}:
		default:
		}
	})
	defer t.Unsubscribe(tok)
	metrics.SSEClients.Inc()
	defer metrics.SSEClients.Dec()

	h := w.Header()
	h.Set("content-type", "text/event-stream")
	h.Set("cache-control", "no-store")
	h.Set("connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "retry: 3000\nevent: ready\ndata: {\"tab\":%q}\n\n", t.ID)
	flusher.Flush()
	logger.L().Debug("sse_open", "tab", t.ID)

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			logger.L().Debug("sse_close", "tab", t.ID)
			return
		case <-signals:
			n := t.Visited(ctx).Len()
			if _, err := fmt.Fprintf(w, "event: visited\ndata: {\"count\":%d}\n\n", n); err != nil {
				return
			}
			flusher.Flush()
		case <-t.Done():
			logger.L().Debug("sse_tab_closed", "tab", t.ID)
			return
		case <-ticker.C:
			// 活动的流负责续期标签页；取回的不是同一个标签页说明已被淘汰，结束流由客户端按 retry 重连
			if cur, err := s.tabs.Get(t.ID, ip); err != nil || cur != t {
				logger.L().Debug("sse_tab_replaced", "tab", t.ID)
				return
			}
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
