package utils

import (
	"database/sql"
	"net"
	"net/url"
	"os"
	"strconv"

	_ "github.com/lib/pq"
)

// 优先返回 DATABASE_URL，否则由 PG_* 变量拼出 URL；用户名与密码会转义
func PostgresDSNFromEnv() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	env := func(k, def string) string {
		if v := os.Getenv(k); v != "" {
			return v
		}
		return def
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.User(env("PG_USER", "postgres")),
		Host:     net.JoinHostPort(env("PG_HOST", "localhost"), env("PG_PORT", "5432")),
		Path:     "/" + env("PG_DB", "cityatlas"),
		RawQuery: url.Values{"sslmode": {env("PG_SSLMODE", "disable")}}.Encode(),
	}
	if pass := os.Getenv("PG_PASSWORD"); pass != "" {
		u.User = url.UserPassword(u.User.Username(), pass)
	}
	return u.String()
}

// 按 PG_* 变量打开连接池
// NOTE: 同时返回 DSN，pq.Listener 需要独立连接
func OpenPostgresFromEnv() (*sql.DB, string, error) {
	dsn := PostgresDSNFromEnv()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, "", err
	}
	maxOpen := 20
	maxIdle := 10
	if v := os.Getenv("PG_MAX_OPEN_CONNS"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			maxOpen = n
		}
	}
	if v := os.Getenv("PG_MAX_IDLE_CONNS"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			maxIdle = n
		}
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	return db, dsn, nil
}
