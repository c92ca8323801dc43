package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/levelup/config"
	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/infrastructure/persistence/sqlite"
)

func TestOpenStorage_SQLite(t *testing.T) {
	ctx := context.Background()
	s, err := OpenStorage(ctx, config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: sqlite.MemoryPath,
	}, nil)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, config.DriverSQLite, s.Driver)
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Migrate(ctx))

	status, err := s.MigrationStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, status)

	rec, err := s.Ranks.GetRecord(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, leveling.Snowflake(42), rec.UserID)
	assert.Zero(t, rec.CurrentXP)
}

func TestOpenStorage_UnknownDriver(t *testing.T) {
	_, err := OpenStorage(context.Background(), config.DatabaseConfig{Driver: "mysql"}, nil)
	assert.ErrorContains(t, err, "mysql")
}

func TestOpenRedis_Disabled(t *testing.T) {
	_, err := OpenRedis(config.RedisConfig{Disabled: true}, 1)
	assert.ErrorIs(t, err, ErrRedisDisabled)
}
