// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"city-atlas/internal/api"
	"city-atlas/internal/catalog"
	"city-atlas/internal/config"
	"city-atlas/internal/geoip"
	"city-atlas/internal/logger"
	"city-atlas/internal/metrics"
	"city-atlas/internal/middleware"
	"city-atlas/internal/migrate"
	"city-atlas/internal/pipeline"
	"city-atlas/internal/session"
	"city-atlas/internal/storage"
	"city-atlas/internal/utils"
	"city-atlas/internal/view"
)

func main() {
	config.LoadDotenv()
	l := logger.Setup()
	l.Debug("log_init_ok")
	cfg := config.FromEnv()
	l.Debug("config_api_base", "base", cfg.APIBase)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	var dsn string
	if cfg.CitiesSource == "postgres" || cfg.StorageDriver == string(storage.DriverPostgres) {
		var err error
		db, dsn, err = utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			l.Error("db_ping_error", "err", err)
			os.Exit(1)
		}
		if err := migrate.EnsureSchema(db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		l.Info("db_open_ok")
	}

	records, err := loadCatalog(ctx, cfg, db)
	if err != nil {
		l.Error("catalog_load_error", "source", cfg.CitiesSource, "err", err)
		os.Exit(1)
	}
	l.Info("catalog_ready", "cities", records.Len(), "districts", len(records.Districts()))

	backend, err := openStorage(ctx, l, cfg, db, dsn)
	if err != nil {
		l.Error("storage_open_error", "driver", cfg.StorageDriver, "err", err)
		os.Exit(1)
	}
	defer backend.Close()
	l.Info("storage_ready", "driver", cfg.StorageDriver)

	loc, err := geoip.Open(cfg.GeoIPPath, cfg.GeoIPCountry)
	if err != nil {
		l.Error("geoip_open_error", "path", cfg.GeoIPPath, "err", err)
		loc = nil
	}
	defer loc.Close()

	fallback := orb.Point{cfg.MapCenterLon, cfg.MapCenterLat}
	mode := pipeline.ParseMode(cfg.ReselectMode)
	tabs := session.NewRegistry(cfg.SessionTTL, func(ctx context.Context, id, ip string) (*view.Tab, error) {
		center := fallback
		if p, ok := loc.Center(ip); ok {
			center = p
		}
		return view.NewTab(ctx, backend, records, view.TabOptions{
			ID:         id,
			VisitedKey: cfg.VisitedKey,
			Mode:       mode,
			Center:     center,
			Zoom:       cfg.MapZoom,
		})
	})
	defer tabs.Close()

	apiMux := api.BuildRoutes(tabs, records, api.Options{Production: cfg.Production})
	mux := http.NewServeMux()
	mux.Handle(cfg.APIBase+"/", http.StripPrefix(cfg.APIBase, apiMux))
	mux.Handle(cfg.APIBase+"/metrics", metrics.Handler())

	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler, middleware.Options{
		RateLimitEnabled: cfg.RateLimitEnabled,
		RateLimitQPS:     cfg.RateLimitQPS,
		RateLimitBurst:   cfg.RateLimitBurst,
		CORSOrigins:      cfg.CORSOrigins,
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if cfg.TLSEnable {
			if err := utils.EnsureSelfSignedCert(cfg.TLSCertPath, cfg.TLSKeyPath, "city-atlas.local"); err != nil {
				return fmt.Errorf("tls cert: %w", err)
			}
			l.Info("listening_tls", "addr", cfg.Addr, "cert", cfg.TLSCertPath, "production", cfg.Production)
			err = srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			l.Info("listening", "addr", cfg.Addr, "production", cfg.Production)
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		l.Info("shutdown_begin")
		return srv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		l.Error("server_error", "err", err)
		os.Exit(1)
	}
	l.Info("shutdown_ok")
}

func loadCatalog(ctx context.Context, cfg config.Config, db *sql.DB) (*catalog.Store, error) {
	var cities []catalog.City
	var err error
	switch cfg.CitiesSource {
	case "postgres":
		cities, err = catalog.LoadPostgres(ctx, db)
	case "file", "":
		cities, err = catalog.LoadFile(cfg.CitiesPath)
	default:
		return nil, fmt.Errorf("unknown cities source %q", cfg.CitiesSource)
	}
	if err != nil {
		return nil, err
	}
	return catalog.NewStore(cities), nil
}

func openStorage(ctx context.Context, l *slog.Logger, cfg config.Config, db *sql.DB, dsn string) (storage.Backend, error) {
	sc := storage.Config{
		Driver:       storage.Driver(cfg.StorageDriver),
		SQLitePath:   cfg.SQLitePath,
		PollInterval: cfg.SQLitePoll,
		Postgres:     db,
		PostgresDSN:  dsn,
	}
	if sc.Driver == storage.DriverRedis {
		rc := utils.OpenRedisFromEnv()
		if err := rc.Ping(ctx).Err(); err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		l.Info("redis_ping_ok")
		sc.Redis = rc
	}
	return storage.Open(ctx, sc)
}
