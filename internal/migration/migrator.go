package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/BaSui01/healthgraph/config"
	"github.com/BaSui01/healthgraph/internal/database"
)

// =============================================================================
// 📦 内嵌迁移文件
// =============================================================================

//go:embed migrations
var migrationsFS embed.FS

// DefaultTableName 迁移版本表
const DefaultTableName = "schema_migrations"

// MigrationStatus 单个迁移文件的状态
type MigrationStatus struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// MigrationInfo 当前迁移状态摘要
type MigrationInfo struct {
	CurrentVersion    uint
	Dirty             bool
	TotalMigrations   int
	AppliedMigrations int
	PendingMigrations int
}

// Migrator 基于 golang-migrate 的迁移器。Close 会一并关闭传入的 *sql.DB。
type Migrator struct {
	driver  database.Driver
	migrate *migrate.Migrate
	logger  *zap.Logger
}

// Option 迁移器选项
type Option func(*options)

type options struct {
	tableName string
	logger    *zap.Logger
}

// WithTableName 自定义版本表名
func WithTableName(name string) Option {
	return func(o *options) { o.tableName = name }
}

// WithLogger 设置日志器
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New 在已打开的连接上创建迁移器。db 应由 database.Open 打开，
// 以保证 DSN 约定一致（MySQL 需要 multiStatements）。
func New(driver database.Driver, db *sql.DB, opts ...Option) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	o := options{tableName: DefaultTableName, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	dbDriver, err := instance(driver, db, o.tableName)
	if err != nil {
		return nil, fmt.Errorf("create %s migration driver: %w", driver, err)
	}
	src, err := iofs.New(migrationsFS, sourceDir(driver))
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, string(driver), dbDriver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	return &Migrator{
		driver:  driver,
		migrate: m,
		logger:  o.logger.With(zap.String("component", "migration"), zap.String("driver", string(driver))),
	}, nil
}

// Open 为迁移单独打开一个连接，调用方负责 Close
func Open(cfg config.DatabaseConfig, logger *zap.Logger, opts ...Option) (*Migrator, error) {
	pool, err := database.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	m, err := New(pool.Driver(), pool.SQLDB(), append([]Option{WithLogger(logger)}, opts...)...)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}
	return m, nil
}

func instance(driver database.Driver, db *sql.DB, table string) (migratedb.Driver, error) {
	switch driver {
	case database.DriverPostgres:
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
	case database.DriverMySQL:
		return mysql.WithInstance(db, &mysql.Config{MigrationsTable: table})
	case database.DriverSQLite:
		return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: table})
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}
}

func sourceDir(driver database.Driver) string {
	return path.Join("migrations", string(driver))
}

// Up 应用全部待执行迁移
func (m *Migrator) Up(ctx context.Context) error {
	start := time.Now()
	if err := m.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Debug("schema up to date")
			return nil
		}
		return fmt.Errorf("migration up failed: %w", err)
	}
	version, _, _ := m.Version(ctx)
	m.logger.Info("migrations applied", zap.Uint("version", version), zap.Duration("duration", time.Since(start)))
	return nil
}

// Down 回滚最近一次迁移
func (m *Migrator) Down(ctx context.Context) error {
	return m.Steps(ctx, -1)
}

// Steps n 为正时前进 n 步，为负时回滚
func (m *Migrator) Steps(ctx context.Context, n int) error {
	if err := m.migrate.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration steps failed: %w", err)
	}
	return nil
}

// Goto 迁移到指定版本
func (m *Migrator) Goto(ctx context.Context, version uint) error {
	if err := m.migrate.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration goto failed: %w", err)
	}
	return nil
}

// Force 只改写版本号不执行迁移，用于清理 dirty 状态
func (m *Migrator) Force(ctx context.Context, version int) error {
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	m.logger.Warn("migration version forced", zap.Int("version", version))
	return nil
}

// Version 返回当前版本。尚未迁移时返回 0。
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	return version, dirty, nil
}

// Status 返回每个迁移文件的状态
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	files, err := available(m.driver)
	if err != nil {
		return nil, err
	}
	statuses := make([]MigrationStatus, 0, len(files))
	for _, f := range files {
		statuses = append(statuses, MigrationStatus{
			Version: f.version,
			Name:    f.name,
			Applied: f.version <= current,
			Dirty:   dirty && f.version == current,
		})
	}
	return statuses, nil
}

// Info 返回状态摘要
func (m *Migrator) Info(ctx context.Context) (*MigrationInfo, error) {
	statuses, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	info := &MigrationInfo{CurrentVersion: current, Dirty: dirty, TotalMigrations: len(statuses)}
	for _, s := range statuses {
		if s.Applied {
			info.AppliedMigrations++
		}
	}
	info.PendingMigrations = info.TotalMigrations - info.AppliedMigrations
	return info, nil
}

// Close 释放迁移源与数据库连接
func (m *Migrator) Close() error {
	srcErr, dbErr := m.migrate.Close()
	return errors.Join(srcErr, dbErr)
}

type migrationFile struct {
	version uint
	name    string
}

// available 列出内嵌的 *.up.sql，按版本排序
func available(driver database.Driver) ([]migrationFile, error) {
	entries, err := fs.ReadDir(migrationsFS, sourceDir(driver))
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []migrationFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil {
			continue
		}
		files = append(files, migrationFile{
			version: uint(version),
			name:    strings.TrimSuffix(rest, ".up.sql"),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}
