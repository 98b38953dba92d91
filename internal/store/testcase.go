package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jjudge-oj/problemgen/types"
)

const testcaseColumns = `id, problem_id, user_id, testcases, archive_key, archive_sha256, generated_at, created_at, updated_at`

// TestcaseRepository handles persistence for generated testcase sets in
// Postgres. There is at most one set per (problem_id, user_id).
type TestcaseRepository struct {
	db *sql.DB
}

func NewTestcaseRepository(db *sql.DB) *TestcaseRepository {
	return &TestcaseRepository{db: db}
}

func (r *TestcaseRepository) Get(ctx context.Context, problemID, owner string) (types.TestcaseSet, error) {
	query := `SELECT ` + testcaseColumns + ` FROM testcase_sets WHERE problem_id = $1 AND user_id = $2`
	set, err := scanTestcaseSet(r.db.QueryRowContext(ctx, query, problemID, owner))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.TestcaseSet{}, ErrNotFound
		}
		return types.TestcaseSet{}, err
	}
	return set, nil
}

// Create inserts a new set. An existing set for the same problem and owner
// yields ErrConflict.
func (r *TestcaseRepository) Create(ctx context.Context, set types.TestcaseSet) (types.TestcaseSet, error) {
	now := time.Now().UTC()
	set.CreatedAt = now
	set.UpdatedAt = now
	if set.GeneratedAt.IsZero() {
		set.GeneratedAt = now
	}
	if set.Testcases == nil {
		set.Testcases = []types.GeneratedTestcase{}
	}
	raw, err := json.Marshal(set.Testcases)
	if err != nil {
		return types.TestcaseSet{}, err
	}

	query := `
		INSERT INTO testcase_sets (` + testcaseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query,
		set.ID, set.ProblemID, set.UserID, raw, set.ArchiveKey, set.ArchiveSHA256,
		set.GeneratedAt, set.CreatedAt, set.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return types.TestcaseSet{}, ErrConflict
		}
		return types.TestcaseSet{}, err
	}
	return set, nil
}

// Replace upserts the set for (ProblemID, UserID). An existing row keeps its
// id and created_at.
func (r *TestcaseRepository) Replace(ctx context.Context, set types.TestcaseSet) (types.TestcaseSet, error) {
	now := time.Now().UTC()
	if set.GeneratedAt.IsZero() {
		set.GeneratedAt = now
	}
	if set.Testcases == nil {
		set.Testcases = []types.GeneratedTestcase{}
	}
	raw, err := json.Marshal(set.Testcases)
	if err != nil {
		return types.TestcaseSet{}, err
	}

	query := `
		INSERT INTO testcase_sets (` + testcaseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (problem_id, user_id) DO UPDATE
		SET testcases = EXCLUDED.testcases,
			archive_key = EXCLUDED.archive_key,
			archive_sha256 = EXCLUDED.archive_sha256,
			generated_at = EXCLUDED.generated_at,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + testcaseColumns
	return scanTestcaseSet(r.db.QueryRowContext(ctx, query,
		set.ID, set.ProblemID, set.UserID, raw, set.ArchiveKey, set.ArchiveSHA256, set.GeneratedAt, now,
	))
}

func (r *TestcaseRepository) Delete(ctx context.Context, problemID, owner string) error {
	const query = `DELETE FROM testcase_sets WHERE problem_id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, problemID, owner)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTestcaseSet(row rowScanner) (types.TestcaseSet, error) {
	var set types.TestcaseSet
	var raw []byte
	if err := row.Scan(
		&set.ID,
		&set.ProblemID,
		&set.UserID,
		&raw,
		&set.ArchiveKey,
		&set.ArchiveSHA256,
		&set.GeneratedAt,
		&set.CreatedAt,
		&set.UpdatedAt,
	); err != nil {
		return types.TestcaseSet{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &set.Testcases); err != nil {
			return types.TestcaseSet{}, fmt.Errorf("decode testcase set %s: %w", set.ID, err)
		}
	}
	if set.Testcases == nil {
		set.Testcases = []types.GeneratedTestcase{}
	}
	return set, nil
}
