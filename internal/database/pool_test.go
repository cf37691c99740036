package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/healthgraph/config"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{})
	require.NoError(t, err)
	return mockDB, mock, gormDB
}

func testPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		TxRetries:       1,
	}
}

func TestParseDriver(t *testing.T) {
	cases := map[string]Driver{
		"mysql":      DriverMySQL,
		"MariaDB":    DriverMySQL,
		"postgres":   DriverPostgres,
		"postgresql": DriverPostgres,
		" pg ":       DriverPostgres,
		"sqlite3":    DriverSQLite,
	}
	for in, want := range cases {
		got, err := ParseDriver(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDriver("oracle")
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	t.Run("mysql", func(t *testing.T) {
		driver, dsn, err := DSN(config.DatabaseConfig{
			Driver: "mysql", Host: "db", Port: 3306, User: "hg", Password: "pw", Name: "health",
		})
		require.NoError(t, err)
		assert.Equal(t, DriverMySQL, driver)
		assert.Contains(t, dsn, "hg:pw@tcp(db:3306)/health?")
		assert.Contains(t, dsn, "parseTime=true")
		assert.Contains(t, dsn, "multiStatements=true")
	})

	t.Run("postgres defaults sslmode", func(t *testing.T) {
		_, dsn, err := DSN(config.DatabaseConfig{
			Driver: "postgres", Host: "db", Port: 5432, User: "hg", Password: "pw", Name: "health",
		})
		require.NoError(t, err)
		assert.Contains(t, dsn, "host=db port=5432")
		assert.Contains(t, dsn, "sslmode=require")
	})

	t.Run("sqlite", func(t *testing.T) {
		_, dsn, err := DSN(config.DatabaseConfig{Driver: "sqlite", Name: "/tmp/hg.db"})
		require.NoError(t, err)
		assert.Contains(t, dsn, "file:/tmp/hg.db")
		assert.Contains(t, dsn, "foreign_keys(1)")
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, _, err := DSN(config.DatabaseConfig{Driver: "mssql"})
		assert.Error(t, err)
	})
}

func TestPoolConfigFrom(t *testing.T) {
	cfg := PoolConfigFrom(config.DatabaseConfig{MaxOpenConns: 40})
	assert.Equal(t, 40, cfg.MaxOpenConns)
	assert.Equal(t, DefaultPoolConfig().MaxIdleConns, cfg.MaxIdleConns)
	assert.Equal(t, DefaultPoolConfig().ConnMaxLifetime, cfg.ConnMaxLifetime)
}

func TestNewPoolManager(t *testing.T) {
	_, _, gormDB := setupMockDB(t)

	pm, err := NewPoolManager(gormDB, DriverPostgres, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	defer pm.Close()

	assert.Same(t, gormDB, pm.DB())
	assert.NotNil(t, pm.SQLDB())
	assert.Equal(t, DriverPostgres, pm.Driver())
	assert.Equal(t, 10, pm.Stats().MaxOpenConnections)

	_, err = NewPoolManager(nil, DriverPostgres, testPoolConfig(), nil)
	assert.Error(t, err)
}

func TestPoolManager_Close(t *testing.T) {
	_, mock, gormDB := setupMockDB(t)
	mock.ExpectClose()

	pm, err := NewPoolManager(gormDB, DriverPostgres, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, pm.Close())
	require.NoError(t, pm.Close())

	assert.ErrorIs(t, pm.Ping(context.Background()), ErrPoolClosed)
	err = pm.WithTransaction(context.Background(), func(tx *gorm.DB) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransaction(t *testing.T) {
	t.Run("commit", func(t *testing.T) {
		_, mock, gormDB := setupMockDB(t)
		pm, err := NewPoolManager(gormDB, DriverPostgres, testPoolConfig(), zap.NewNop())
		require.NoError(t, err)
		defer pm.Close()

		mock.ExpectBegin()
		mock.ExpectCommit()

		err = pm.WithTransaction(context.Background(), func(tx *gorm.DB) error { return nil })
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback on error", func(t *testing.T) {
		_, mock, gormDB := setupMockDB(t)
		pm, err := NewPoolManager(gormDB, DriverPostgres, testPoolConfig(), zap.NewNop())
		require.NoError(t, err)
		defer pm.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("constraint violated")
		err = pm.WithTransaction(context.Background(), func(tx *gorm.DB) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retries deadlock", func(t *testing.T) {
		_, mock, gormDB := setupMockDB(t)
		pm, err := NewPoolManager(gormDB, DriverPostgres, testPoolConfig(), zap.NewNop())
		require.NoError(t, err)
		defer pm.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()
		mock.ExpectBegin()
		mock.ExpectCommit()

		calls := 0
		err = pm.WithTransaction(context.Background(), func(tx *gorm.DB) error {
			calls++
			if calls == 1 {
				return errors.New("ERROR: deadlock detected (SQLSTATE 40P01)")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.True(t, isRetryableError(errors.New("Deadlock found when trying to get lock")))
	assert.True(t, isRetryableError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, isRetryableError(errors.New("driver: bad connection")))
	assert.False(t, isRetryableError(errors.New("duplicate key value")))
}

func TestOpen_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "healthgraph.db")
	pm, err := Open(config.DatabaseConfig{Driver: "sqlite", Name: path}, zap.NewNop())
	require.NoError(t, err)
	defer pm.Close()

	assert.Equal(t, DriverSQLite, pm.Driver())
	assert.Equal(t, 1, pm.Stats().MaxOpenConnections)

	var fk int
	require.NoError(t, pm.SQLDB().QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	err = pm.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return tx.Exec("CREATE TABLE scratch (id INTEGER PRIMARY KEY)").Error
	})
	require.NoError(t, err)
	assert.True(t, pm.DB().Migrator().HasTable("scratch"))
}
