// 数据导入工具：读取城市 JSON 数据集并批量 UPSERT 到 PostgreSQL（cities 表）
package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"city-atlas/internal/catalog"
	"city-atlas/internal/config"
	"city-atlas/internal/logger"
	"city-atlas/internal/migrate"
	"city-atlas/internal/utils"
)

func main() {
	config.LoadDotenv()
	l := logger.Setup()
	path := os.Getenv("CITIES_PATH")
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if path == "" {
		path = filepath.Join("data", "russia-cities.json")
	}

	cities, err := catalog.LoadFile(path)
	if err != nil {
		l.Error("cities_read_error", "path", path, "err", err)
		os.Exit(1)
	}
	// 重复 id 只保留首条，写库前完成去重
	store := catalog.NewStore(cities)
	l.Info("cities_read_ok", "path", path, "cities", store.Len(), "districts", len(store.Districts()))

	db, _, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := migrate.EnsureSchema(db); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	start := time.Now()
	n, err := catalog.SavePostgres(ctx, db, store.All())
	if err != nil {
		l.Error("cities_import_error", "done", n, "err", err)
		os.Exit(1)
	}
	l.Info("cities_import_ok", "cities", n, "duration_ms", time.Since(start).Milliseconds())
}
