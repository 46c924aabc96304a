package storage

import (
	"fmt"

	"amd-helper/models"
)

const defaultListLimit = 20

func (p *ProviderSQL) RecordRun(rec *models.RunRecord) error {
	query := `
        INSERT OR REPLACE INTO runs (id, started_at, finished_at, outcome, lang, text_len, tier, error)
        VALUES (:id, :started_at, :finished_at, :outcome, :lang, :text_len, :tier, :error);`
	if _, err := p.db.NamedExec(query, rec); err != nil {
		return fmt.Errorf("failed to record run %s: %w", rec.ID, err)
	}
	return nil
}

// ListRuns returns the newest runs first.
func (p *ProviderSQL) ListRuns(limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	resp := []models.RunRecord{}
	err := p.db.Select(&resp, "SELECT * FROM runs ORDER BY started_at DESC LIMIT $1;", limit)
	return resp, err
}

func (p *ProviderSQL) GetRun(id string) (*models.RunRecord, error) {
	resp := models.RunRecord{}
	if err := p.db.Get(&resp, "SELECT * FROM runs WHERE id=$1;", id); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PruneRuns keeps the newest keep runs and returns how many were deleted.
func (p *ProviderSQL) PruneRuns(keep int) (int64, error) {
	res, err := p.db.Exec(`
        DELETE FROM runs WHERE id NOT IN (
            SELECT id FROM runs ORDER BY started_at DESC LIMIT $1
        );`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}
