package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	pkgerrors "github.com/pkg/errors"
)

var upMigrationFile = regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)

type MigrationConfig struct {
	MigrationFolderPath string
	// Version pins the schema version; 0 applies every migration.
	Version uint
	// Force marks the schema clean at this version before migrating.
	Force int
	// AutoRollback forces a dirty schema back to the version it was at
	// before a failed run.
	AutoRollback bool
}

// MigrationStatus describes the schema of one database
type MigrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	Latest  uint `json:"latest"`
}

func (s MigrationStatus) Pending() bool { return s.Version < s.Latest }

type migrationLogger struct {
	ectologger.Logger
}

func (l migrationLogger) Verbose() bool { return false }

func (l migrationLogger) Printf(format string, v ...any) { l.Infof(format, v...) }

type MigrationService struct {
	config *MigrationConfig
	logger ectologger.Logger
}

func NewMigrationService(logger ectologger.Logger, config *MigrationConfig) *MigrationService {
	return &MigrationService{config: config, logger: logger}
}

// folder resolves a relative migration path against the working directory
func (ms *MigrationService) folder() (string, error) {
	path := ms.config.MigrationFolderPath
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		path = filepath.Join(wd, path)
	}
	if _, err := os.Stat(path); err != nil {
		return "", pkgerrors.Wrapf(err, "migration folder %s does not exist", path)
	}
	return path, nil
}

func (ms *MigrationService) open(db *sqlx.DB, databaseName string) (*migrate.Migrate, error) {
	folder, err := ms.folder()
	if err != nil {
		return nil, err
	}
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{DatabaseName: databaseName})
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create postgres migration driver")
		return nil, pkgerrors.Wrap(err, "failed to create postgres migration driver")
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, driver)
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create migrate instance")
		return nil, pkgerrors.Wrap(err, "failed to create migrate instance")
	}
	m.Log = migrationLogger{Logger: ms.logger}
	return m, nil
}

// MigratePostgres applies the migration folder to a postgres pool.
func (ms *MigrationService) MigratePostgres(db *sqlx.DB, databaseName string) error {
	m, err := ms.open(db, databaseName)
	if err != nil {
		return err
	}
	log := ms.logger.WithField("database", databaseName)

	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			log.WithError(err).Errorf("Failed to force schema to version %d", ms.config.Force)
			return err
		}
	}

	before, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		log.WithError(err).Error("Failed to read schema version")
	}

	if ms.config.Version != 0 {
		err = m.Migrate(ms.config.Version)
	} else {
		err = m.Up()
	}
	switch {
	case err == nil:
		after, _, _ := m.Version()
		log.Infof("Schema migrated from version %d to %d", before, after)
		return nil
	case errors.Is(err, migrate.ErrNoChange):
		log.Infof("Schema is up to date at version %d", before)
		return nil
	}

	log.WithError(err).Error("Migration failed")
	version, dirty, verr := m.Version()
	if verr != nil || !dirty || !ms.config.AutoRollback {
		return err
	}
	if before == 0 && version > 0 {
		before = version - 1
	}
	log.Warnf("Schema is dirty at version %d, forcing it back to %d", version, before)
	if ferr := m.Force(int(before)); ferr != nil {
		log.WithError(ferr).Errorf("Failed to force schema to version %d", before)
		return ferr
	}
	return err
}

// Status reports the applied and the newest available schema version.
func (ms *MigrationService) Status(db *sqlx.DB, databaseName string) (MigrationStatus, error) {
	var status MigrationStatus
	folder, err := ms.folder()
	if err != nil {
		return status, err
	}
	if status.Latest, err = latestVersion(folder); err != nil {
		return status, err
	}

	m, err := ms.open(db, databaseName)
	if err != nil {
		return status, err
	}
	status.Version, status.Dirty, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return status, err
	}
	return status, nil
}

func latestVersion(folder string) (uint, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return 0, err
	}
	var latest uint
	for _, e := range entries {
		match := upMigrationFile.FindStringSubmatch(e.Name())
		if e.IsDir() || match == nil {
			continue
		}
		v, err := strconv.ParseUint(match[1], 10, 64)
		if err != nil {
			return 0, err
		}
		latest = max(latest, uint(v))
	}
	if latest == 0 {
		return 0, fmt.Errorf("no migrations found in %s", folder)
	}
	return latest, nil
}
