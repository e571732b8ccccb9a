// 包 config：从环境变量读取服务配置
// 约束：每项均带默认值，空环境即可启动本地实例
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr    string
	APIBase string
	// 生产环境隐藏标记接口
	Production bool

	CitiesSource string // file | postgres
	CitiesPath   string

	StorageDriver string
	SQLitePath    string
	SQLitePoll    time.Duration
	VisitedKey    string
	ReselectMode  string

	SessionTTL time.Duration

	RateLimitEnabled bool
	RateLimitQPS     float64
	RateLimitBurst   int
	CORSOrigins      []string

	GeoIPPath    string
	GeoIPCountry string
	MapCenterLat float64
	MapCenterLon float64
	MapZoom      int

	TLSEnable   bool
	TLSCertPath string
	TLSKeyPath  string
}

// 读取 .env 文件（如存在），缺失时忽略
func LoadDotenv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
}

// 从进程环境读取配置
func FromEnv() Config {
	c := Config{
		Addr:             str("ADDR", ":8080"),
		APIBase:          strings.TrimRight(str("API_BASE", "/api"), "/"),
		Production:       strings.EqualFold(os.Getenv("APP_ENV"), "production"),
		CitiesSource:     str("CITIES_SOURCE", "file"),
		CitiesPath:       str("CITIES_PATH", filepath.Join("data", "russia-cities.json")),
		StorageDriver:    str("STORAGE_DRIVER", "sqlite"),
		SQLitePath:       str("SQLITE_PATH", filepath.Join("data", "city-atlas.db")),
		SQLitePoll:       time.Duration(integer("SQLITE_POLL_MS", 250)) * time.Millisecond,
		VisitedKey:       str("VISITED_KEY", "visitedCities"),
		ReselectMode:     str("REGION_RESELECT", "on_change"),
		SessionTTL:       time.Duration(integer("SESSION_TTL_MIN", 30)) * time.Minute,
		RateLimitEnabled: os.Getenv("RATE_LIMIT_ENABLED") == "true",
		RateLimitQPS:     float(os.Getenv("RATE_LIMIT_QPS"), 200),
		RateLimitBurst:   integer("RATE_LIMIT_BURST", 400),
		GeoIPPath:        os.Getenv("GEOIP_DB_PATH"),
		GeoIPCountry:     str("GEOIP_COUNTRY", "RU"),
		MapCenterLat:     float(os.Getenv("MAP_CENTER_LAT"), 55.7558),
		MapCenterLon:     float(os.Getenv("MAP_CENTER_LON"), 37.6173),
		MapZoom:          integer("MAP_ZOOM", 5),
		TLSEnable:        os.Getenv("TLS_ENABLE") == "true",
		TLSCertPath:      str("TLS_CERT_PATH", filepath.Join("data", "certs", "server.crt")),
		TLSKeyPath:       str("TLS_KEY_PATH", filepath.Join("data", "certs", "server.key")),
	}
	if c.APIBase == "" {
		c.APIBase = "/api"
	}
	for _, o := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			c.CORSOrigins = append(c.CORSOrigins, o)
		}
	}
	return c
}

func str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// 无法解析或非正数时使用默认值
func integer(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func float(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}
