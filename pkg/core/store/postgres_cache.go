package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"finstory/pkg/core/pipeline"
	"finstory/pkg/models"
)

// PostgresCache stores results as JSONB rows in analysis_results.
type PostgresCache struct {
	db DB
}

var _ Cache = (*PostgresCache)(nil)

// NewPostgresCache uses an open pool; see Connect.
func NewPostgresCache(db DB) *PostgresCache {
	return &PostgresCache{db: db}
}

func (c *PostgresCache) Get(ctx context.Context, fingerprint string) (*Entry, error) {
	query := `SELECT persona, result_json, updated_at FROM analysis_results WHERE fingerprint = $1`

	var (
		entry    = Entry{Fingerprint: fingerprint}
		jsonData []byte
		persona  string
	)
	err := c.db.QueryRow(ctx, query, fingerprint).Scan(&persona, &jsonData, &entry.StoredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis: %w", err)
	}

	var res pipeline.Result
	if err := json.Unmarshal(jsonData, &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis data: %w", err)
	}
	entry.Persona = models.Persona(persona)
	entry.Result = &res
	return &entry, nil
}

// Put upserts on fingerprint.
func (c *PostgresCache) Put(ctx context.Context, entry *Entry) error {
	jsonData, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO analysis_results (fingerprint, persona, result_json, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (fingerprint)
		DO UPDATE SET
			persona = EXCLUDED.persona,
			result_json = EXCLUDED.result_json,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := c.db.Exec(ctx, query, entry.Fingerprint, string(entry.Persona), jsonData, storedAt); err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}
