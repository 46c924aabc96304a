package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"amd-helper/models"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
)

type RunHistory interface {
	RecordRun(rec *models.RunRecord) error
	ListRuns(limit int) ([]models.RunRecord, error)
	GetRun(id string) (*models.RunRecord, error)
	PruneRuns(keep int) (int64, error)
	Close() error
}

type ProviderSQL struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewProviderSQL opens (creating if needed) the sqlite file and applies migrations.
func NewProviderSQL(dbPath string, logger *slog.Logger) (*ProviderSQL, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db dir: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open db %s: %w", dbPath, err)
	}
	// sqlite allows one writer; :memory: is per connection
	db.SetMaxOpenConns(1)
	p := &ProviderSQL{db: db, logger: logger.With("component", "storage")}
	var version string
	if err := db.Get(&version, "select sqlite_version()"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to query sqlite version: %w", err)
	}
	p.logger.Debug("db opened", "path", dbPath, "sqlite", version)
	if err := p.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *ProviderSQL) Close() error {
	return p.db.Close()
}
