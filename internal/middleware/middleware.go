package middleware

import (
	"net/http"

	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"city-atlas/internal/logger"
	"city-atlas/internal/metrics"
)

type Options struct {
	RateLimitEnabled bool
	RateLimitQPS     float64
	RateLimitBurst   int
	CORSOrigins      []string
}

// 文档注释：挂载 CORS 与（启用时的）全局令牌桶限流
// 约束：被拒绝的请求直接返回 429，不排队
func Wrap(next http.Handler, o Options) http.Handler {
	h := next
	if o.RateLimitEnabled {
		h = RateLimit(h, o.RateLimitQPS, o.RateLimitBurst)
	}
	return CORS(h, o.CORSOrigins)
}

func RateLimit(next http.Handler, qps float64, burst int) http.Handler {
	if qps <= 0 {
		qps = 200
	}
	if burst <= 0 {
		burst = int(qps)
	}
	lim := rate.NewLimiter(rate.Limit(qps), burst)
	logger.L().Debug("rate_limit_enabled", "qps", qps, "burst", burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !lim.Allow() {
			metrics.RateLimitedTotal.Inc()
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// 允许列出的来源（为空时全部放行）携带标签页头与 Cookie 调用 API
func CORS(next http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Tab-ID", "Last-Event-ID"},
		ExposedHeaders:   []string{"X-Tab-ID"},
		AllowCredentials: origins[0] != "*",
	})
	return c.Handler(next)
}
