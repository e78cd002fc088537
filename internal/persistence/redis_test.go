package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/config"
)

func TestNewRedisWithoutAddress(t *testing.T) {
	r := NewRedis(context.Background(), config.RedisConfig{}, zap.NewNop())
	assert.Nil(t, r)
	assert.Error(t, r.Ping(context.Background()))
	r.Close()
}

func TestNilPostgres(t *testing.T) {
	var pg *Postgres
	assert.Nil(t, pg.PoolHandle())
	assert.Error(t, pg.Ping(context.Background()))
	assert.NoError(t, RunMigrations(context.Background(), nil, "migrations", zap.NewNop()))
}
