package db

import (
	"context"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openshift/culprit/pkg/db/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DB struct {
	DB *gorm.DB

	// BatchSize is used for how many insertions we should do at once. Postgres supports
	// a maximum of 2^16 records per insert.
	BatchSize int
}

// New opens a database. driver is postgres or sqlite; for sqlite the dsn is a file path.
func New(driver, dsn string, logLevel logger.LogLevel) (*DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres, "":
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, errors.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	return &DB{
		DB:        db,
		BatchSize: 1024,
	}, nil
}

// UpdateSchema creates or migrates the tables of every model.
func (d *DB) UpdateSchema(ctx context.Context) error {
	if err := d.DB.WithContext(ctx).AutoMigrate(
		&models.Push{},
		&models.PushRevision{},
		&models.Task{},
	); err != nil {
		return errors.WithMessage(err, "running migrations")
	}
	log.Info("database schema is up to date")
	return nil
}

func (d *DB) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
