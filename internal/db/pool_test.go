package db

import (
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Pool = (pgxmock.PgxPoolIface)(nil)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig("postgres://user:pw@localhost:5432/mobiodiv", PoolConfig{})
	require.NoError(t, err)
	assert.Equal(t, int32(4), cfg.MaxConns)
	assert.Equal(t, int32(0), cfg.MinConns)
	assert.Equal(t, 30*time.Minute, cfg.MaxConnLifetime)
	assert.Equal(t, 5*time.Minute, cfg.MaxConnIdleTime)
	assert.Equal(t, "mobiodiv", cfg.ConnConfig.Database)
}

func TestParseConfigSizing(t *testing.T) {
	cfg, err := ParseConfig("postgres://localhost/mobiodiv", PoolConfig{MaxConns: 8, MinConns: 2})
	require.NoError(t, err)
	assert.Equal(t, int32(8), cfg.MaxConns)
	assert.Equal(t, int32(2), cfg.MinConns)

	cfg, err = ParseConfig("postgres://localhost/mobiodiv", PoolConfig{MaxConns: 2, MinConns: 5})
	require.NoError(t, err)
	assert.Equal(t, int32(2), cfg.MinConns)
}

func TestParseConfigInvalid(t *testing.T) {
	_, err := ParseConfig("postgres://localhost:notaport/x", PoolConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: parse config")
}
