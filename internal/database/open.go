package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/activity"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/boards"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/columns"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/invitations"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/tasks"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"

	slowQueryThreshold = 200 * time.Millisecond
)

// Config selects the relational store. Path is used by sqlite, DSN by postgres and mysql.
type Config struct {
	Driver string
	Path   string
	DSN    string
}

// Models lists every persisted type in migration order.
func Models() []interface{} {
	return []interface{}{
		&users.User{},
		&boards.Board{},
		&boards.Member{},
		&columns.Column{},
		&tasks.Task{},
		&invitations.Invitation{},
		&notifications.Notification{},
		&activity.UserStats{},
		&activity.Achievement{},
		&migrationRecord{},
	}
}

// Open connects to the configured store and brings the schema up to date.
func Open(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger(logger)})
	if err != nil {
		return nil, err
	}

	if dialector.Name() == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("driver", dialector.Name()))
	return db, nil
}

// newGormLogger routes gorm's slow-query and error reports into zap. Missing rows are an
// expected outcome of lookups and stay silent.
func newGormLogger(logger *zap.Logger) gormlogger.Interface {
	return gormlogger.New(gormLogWriter{logger: logger.Named("gorm")}, gormlogger.Config{
		SlowThreshold:             slowQueryThreshold,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

type gormLogWriter struct {
	logger *zap.Logger
}

func (w gormLogWriter) Printf(format string, args ...interface{}) {
	w.logger.Warn("database statement", zap.String("detail", fmt.Sprintf(format, args...)))
}

func dialectorFor(cfg Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("database path is required")
		}
		return sqlite.Open(cfg.Path), nil
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("database dsn is required for postgres")
		}
		return postgres.Open(cfg.DSN), nil
	case DriverMySQL:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("database dsn is required for mysql")
		}
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
