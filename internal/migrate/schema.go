package migrate

import (
	"database/sql"

	"city-atlas/internal/logger"
)

// 文档注释：postgres 相关路径所需的建表语句
// 约束：所有语句幂等，每次启动都会执行
var Statements = []string{
	`CREATE TABLE IF NOT EXISTS cities (
		id TEXT PRIMARY KEY,
		id_numeric BOOLEAN NOT NULL DEFAULT false,
		ord INT NOT NULL,
		name TEXT NOT NULL,
		population BIGINT,
		region_name TEXT,
		district TEXT,
		lat DOUBLE PRECISION,
		lon DOUBLE PRECISION
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cities_ord ON cities(ord)`,
	`CREATE INDEX IF NOT EXISTS idx_cities_district ON cities(district)`,
	`CREATE TABLE IF NOT EXISTS kv_store (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		writer TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// 创建缺失的表与索引
func EnsureSchema(db *sql.DB) error {
	for i, s := range Statements {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
