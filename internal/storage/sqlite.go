//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"stickreach/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps experiments as encoded documents next to the columns the
// CLI filters on. Fitness history is stored one row per generation.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return fmt.Errorf("%w: sqlite path is required", model.ErrConfiguration)
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	// A single connection keeps writes from concurrent optimizations serial.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return fmt.Errorf("create schema: %w", err)
	}

	s.db = db
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
	id             TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL,
	scape          TEXT NOT NULL,
	created_at_utc TEXT NOT NULL,
	best_reward    REAL NOT NULL,
	document       BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS experiments_by_run ON experiments (run_id);
CREATE TABLE IF NOT EXISTS generations (
	run_id             TEXT NOT NULL,
	generation         INTEGER NOT NULL,
	best_fitness       REAL NOT NULL,
	mean_fitness       REAL NOT NULL,
	elite_mean_fitness REAL NOT NULL,
	mean_std           REAL NOT NULL,
	PRIMARY KEY (run_id, generation)
);
CREATE TABLE IF NOT EXISTS scape_summaries (
	name           TEXT PRIMARY KEY,
	description    TEXT NOT NULL,
	best_fitness   REAL NOT NULL,
	schema_version INTEGER NOT NULL,
	codec_version  INTEGER NOT NULL
);
`

func (s *SQLiteStore) Reset(ctx context.Context) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		DELETE FROM experiments;
		DELETE FROM generations;
		DELETE FROM scape_summaries;
	`)
	return err
}

func (s *SQLiteStore) SaveExperiment(ctx context.Context, experiment model.Experiment) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	document, err := EncodeExperiment(experiment)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO experiments (id, run_id, scape, created_at_utc, best_reward, document)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			run_id = excluded.run_id,
			scape = excluded.scape,
			created_at_utc = excluded.created_at_utc,
			best_reward = excluded.best_reward,
			document = excluded.document
	`, experiment.ID, experiment.RunID, experiment.Scape, experiment.CreatedAtUTC, experiment.BestReward, document)
	return err
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (model.Experiment, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.Experiment{}, false, err
	}

	var document []byte
	err = db.QueryRowContext(ctx, `SELECT document FROM experiments WHERE id = ?`, id).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Experiment{}, false, nil
	}
	if err != nil {
		return model.Experiment{}, false, err
	}
	experiment, err := DecodeExperiment(document)
	if err != nil {
		return model.Experiment{}, false, fmt.Errorf("decode experiment %s: %w", id, err)
	}
	return experiment, true, nil
}

func (s *SQLiteStore) SaveScapeSummary(ctx context.Context, summary model.ScapeSummary) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if err := checkVersion(summary.VersionedRecord); err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO scape_summaries (name, description, best_fitness, schema_version, codec_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			best_fitness = excluded.best_fitness,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version
	`, summary.Name, summary.Description, summary.BestFitness, summary.SchemaVersion, summary.CodecVersion)
	return err
}

func (s *SQLiteStore) GetScapeSummary(ctx context.Context, name string) (model.ScapeSummary, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.ScapeSummary{}, false, err
	}

	summary := model.ScapeSummary{Name: name}
	err = db.QueryRowContext(ctx, `
		SELECT description, best_fitness, schema_version, codec_version
		FROM scape_summaries WHERE name = ?
	`, name).Scan(&summary.Description, &summary.BestFitness, &summary.SchemaVersion, &summary.CodecVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScapeSummary{}, false, nil
	}
	if err != nil {
		return model.ScapeSummary{}, false, err
	}
	if err := checkVersion(summary.VersionedRecord); err != nil {
		return model.ScapeSummary{}, false, fmt.Errorf("scape summary %s: %w", name, err)
	}
	return summary, true, nil
}

// SaveFitnessHistory replaces every stored generation of runID.
func (s *SQLiteStore) SaveFitnessHistory(ctx context.Context, runID string, history []model.GenerationStats) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM generations WHERE run_id = ?`, runID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO generations (run_id, generation, best_fitness, mean_fitness, elite_mean_fitness, mean_std)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, gen := range history {
		if _, err := stmt.ExecContext(ctx, runID, gen.Generation, gen.BestFitness, gen.MeanFitness, gen.EliteMeanFitness, gen.MeanStd); err != nil {
			return fmt.Errorf("generation %d: %w", gen.Generation, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetFitnessHistory(ctx context.Context, runID string) ([]model.GenerationStats, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT generation, best_fitness, mean_fitness, elite_mean_fitness, mean_std
		FROM generations WHERE run_id = ? ORDER BY generation
	`, runID)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var history []model.GenerationStats
	for rows.Next() {
		var gen model.GenerationStats
		if err := rows.Scan(&gen.Generation, &gen.BestFitness, &gen.MeanFitness, &gen.EliteMeanFitness, &gen.MeanStd); err != nil {
			return nil, false, err
		}
		history = append(history, gen)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(history) == 0 {
		return nil, false, nil
	}
	return history, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("sqlite store is not initialized")
	}
	return s.db, nil
}
