package utils

import (
	"crypto/tls"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDSNFromEnv(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "PG_HOST", "PG_PORT", "PG_USER", "PG_PASSWORD", "PG_DB", "PG_SSLMODE"} {
		t.Setenv(k, "")
	}
	assert.Equal(t, "postgres://postgres@localhost:5432/cityatlas?sslmode=disable", PostgresDSNFromEnv())

	t.Setenv("PG_PASSWORD", "secret")
	t.Setenv("PG_HOST", "db")
	assert.Equal(t, "postgres://postgres:secret@db:5432/cityatlas?sslmode=disable", PostgresDSNFromEnv())

	t.Setenv("PG_PASSWORD", "p@ss/word")
	assert.Equal(t, "postgres://postgres:p%40ss%2Fword@db:5432/cityatlas?sslmode=disable", PostgresDSNFromEnv())

	t.Setenv("DATABASE_URL", "postgres://u@h/x")
	assert.Equal(t, "postgres://u@h/x", PostgresDSNFromEnv())
}

func TestOpenRedisFromEnv(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "x")
	rc := OpenRedisFromEnv()
	defer rc.Close()
	assert.Equal(t, "cache:6380", rc.Options().Addr)
	assert.Equal(t, 0, rc.Options().DB)
}

func TestEnsureSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	cert, key := filepath.Join(dir, "certs", "server.crt"), filepath.Join(dir, "certs", "server.key")
	require.NoError(t, EnsureSelfSignedCert(cert, key, "city-atlas.local"))
	_, err := tls.LoadX509KeyPair(cert, key)
	require.NoError(t, err)
	require.NoError(t, EnsureSelfSignedCert(cert, key, "city-atlas.local"))
}
