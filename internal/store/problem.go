package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jjudge-oj/problemgen/types"
)

const problemColumns = `
	id, user_id, topics, rating, suggestion, title, description, examples, constraints, hints, tags,
	difficulty, time_complexity, space_complexity, approach, key_insights, test_cases,
	validation_status, validation_report, is_favorited, generated_at, created_at, updated_at`

// ProblemRepository handles persistence for problems in Postgres.
type ProblemRepository struct {
	db *sql.DB
}

func NewProblemRepository(db *sql.DB) *ProblemRepository {
	return &ProblemRepository{db: db}
}

func (r *ProblemRepository) List(ctx context.Context, owner string, filter types.ProblemFilter, offset, limit int) ([]types.Problem, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}

	where := []string{"user_id = $1"}
	args := []any{owner}
	if filter.FavoritesOnly {
		where = append(where, "is_favorited = TRUE")
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("validation_status = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM problems WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := fmt.Sprintf(`
		SELECT %s
		FROM problems
		WHERE %s
		ORDER BY created_at DESC, id DESC
		OFFSET $%d LIMIT $%d`, problemColumns, clause, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, listQuery, append(args, offset, limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	problems := make([]types.Problem, 0, limit)
	for rows.Next() {
		problem, err := scanProblem(rows)
		if err != nil {
			return nil, 0, err
		}
		problems = append(problems, problem)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return problems, total, nil
}

// Get returns the problem only when it belongs to owner.
func (r *ProblemRepository) Get(ctx context.Context, id, owner string) (types.Problem, error) {
	query := `SELECT ` + problemColumns + ` FROM problems WHERE id = $1 AND user_id = $2`
	problem, err := scanProblem(r.db.QueryRowContext(ctx, query, id, owner))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Problem{}, ErrNotFound
		}
		return types.Problem{}, err
	}
	return problem, nil
}

func (r *ProblemRepository) Create(ctx context.Context, problem types.Problem) (types.Problem, error) {
	now := time.Now().UTC()
	problem.CreatedAt = now
	problem.UpdatedAt = now
	if problem.GeneratedAt.IsZero() {
		problem.GeneratedAt = now
	}
	types.NormalizeProblem(&problem)

	lists, err := marshalProblemLists(problem)
	if err != nil {
		return types.Problem{}, err
	}
	reportJSON, err := marshalReport(problem.ValidationReport)
	if err != nil {
		return types.Problem{}, err
	}

	const query = `
		INSERT INTO problems (
			id, user_id, topics, rating, suggestion, title, description, examples, constraints, hints, tags,
			difficulty, time_complexity, space_complexity, approach, key_insights, test_cases,
			validation_status, validation_report, is_favorited, generated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		problem.ID,
		problem.UserID,
		lists.topics,
		string(problem.Rating),
		problem.Suggestion,
		problem.Title,
		problem.Description,
		lists.examples,
		lists.constraints,
		lists.hints,
		lists.tags,
		problem.Difficulty,
		problem.TimeComplexity,
		problem.SpaceComplexity,
		problem.Approach,
		lists.keyInsights,
		lists.testCases,
		string(problem.ValidationStatus),
		reportJSON,
		problem.IsFavorited,
		problem.GeneratedAt,
		problem.CreatedAt,
		problem.UpdatedAt,
	); err != nil {
		return types.Problem{}, err
	}

	return problem, nil
}

// UpdateFields applies a partial update by id. It returns ErrNotFound when
// the record no longer exists.
func (r *ProblemRepository) UpdateFields(ctx context.Context, id string, update types.ProblemUpdate) (types.Problem, error) {
	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.ValidationStatus != nil {
		set("validation_status", string(*update.ValidationStatus))
	}
	if update.TestCases != nil {
		testCases := *update.TestCases
		if testCases == nil {
			testCases = []types.TestCase{}
		}
		raw, err := json.Marshal(testCases)
		if err != nil {
			return types.Problem{}, err
		}
		set("test_cases", raw)
	}
	if update.ValidationReport != nil {
		raw, err := marshalReport(update.ValidationReport)
		if err != nil {
			return types.Problem{}, err
		}
		set("validation_report", raw)
	}
	if update.IsFavorited != nil {
		set("is_favorited", *update.IsFavorited)
	}
	set("updated_at", time.Now().UTC())

	args = append(args, id)
	where := fmt.Sprintf("id = $%d", len(args))
	if update.ExpectStatus != nil {
		args = append(args, string(*update.ExpectStatus))
		where += fmt.Sprintf(" AND validation_status = $%d", len(args))
	}

	query := fmt.Sprintf(`UPDATE problems SET %s WHERE %s RETURNING %s`, strings.Join(sets, ", "), where, problemColumns)
	problem, err := scanProblem(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Problem{}, r.missingOrSettled(ctx, id, update.ExpectStatus)
		}
		return types.Problem{}, err
	}
	return problem, nil
}

// missingOrSettled explains an update that matched no row.
func (r *ProblemRepository) missingOrSettled(ctx context.Context, id string, expect *types.ValidationStatus) error {
	if expect == nil {
		return ErrNotFound
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM problems WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrStatusMismatch
	}
	return ErrNotFound
}

// ToggleFavorite flips is_favorited in a single statement.
func (r *ProblemRepository) ToggleFavorite(ctx context.Context, id, owner string) (types.Problem, error) {
	query := `
		UPDATE problems
		SET is_favorited = NOT is_favorited, updated_at = $3
		WHERE id = $1 AND user_id = $2
		RETURNING ` + problemColumns
	problem, err := scanProblem(r.db.QueryRowContext(ctx, query, id, owner, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Problem{}, ErrNotFound
		}
		return types.Problem{}, err
	}
	return problem, nil
}

func (r *ProblemRepository) Delete(ctx context.Context, id, owner string) error {
	const query = `DELETE FROM problems WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, owner)
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

// FailStale moves every record still running since before cutoff to failed
// with the given report.
func (r *ProblemRepository) FailStale(ctx context.Context, cutoff time.Time, report types.ValidationReport) (int, error) {
	reportJSON, err := marshalReport(&report)
	if err != nil {
		return 0, err
	}
	const query = `
		UPDATE problems
		SET validation_status = $1, validation_report = $2, updated_at = $3
		WHERE validation_status = $4 AND updated_at < $5`
	res, err := r.db.ExecContext(ctx, query,
		string(types.StatusFailed), reportJSON, time.Now().UTC(), string(types.StatusRunning), cutoff)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (r *ProblemRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProblem(row rowScanner) (types.Problem, error) {
	var problem types.Problem
	var rating, status string
	var topics, examples, constraints, hints, tags, keyInsights, testCases, report []byte
	if err := row.Scan(
		&problem.ID,
		&problem.UserID,
		&topics,
		&rating,
		&problem.Suggestion,
		&problem.Title,
		&problem.Description,
		&examples,
		&constraints,
		&hints,
		&tags,
		&problem.Difficulty,
		&problem.TimeComplexity,
		&problem.SpaceComplexity,
		&problem.Approach,
		&keyInsights,
		&testCases,
		&status,
		&report,
		&problem.IsFavorited,
		&problem.GeneratedAt,
		&problem.CreatedAt,
		&problem.UpdatedAt,
	); err != nil {
		return types.Problem{}, err
	}
	problem.Rating = types.Rating(rating)
	problem.ValidationStatus = types.ValidationStatus(status)

	for _, field := range []struct {
		raw  []byte
		dest any
	}{
		{topics, &problem.Topics},
		{examples, &problem.Examples},
		{constraints, &problem.Constraints},
		{hints, &problem.Hints},
		{tags, &problem.Tags},
		{keyInsights, &problem.KeyInsights},
		{testCases, &problem.TestCases},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dest); err != nil {
			return types.Problem{}, fmt.Errorf("decode problem %s: %w", problem.ID, err)
		}
	}
	if len(report) > 0 && string(report) != "null" {
		problem.ValidationReport = &types.ValidationReport{}
		if err := json.Unmarshal(report, problem.ValidationReport); err != nil {
			return types.Problem{}, fmt.Errorf("decode validation report %s: %w", problem.ID, err)
		}
	}

	types.NormalizeProblem(&problem)
	return problem, nil
}

type problemLists struct {
	topics, examples, constraints, hints, tags, keyInsights, testCases []byte
}

func marshalProblemLists(problem types.Problem) (problemLists, error) {
	var lists problemLists
	for _, field := range []struct {
		dest *[]byte
		src  any
	}{
		{&lists.topics, problem.Topics},
		{&lists.examples, problem.Examples},
		{&lists.constraints, problem.Constraints},
		{&lists.hints, problem.Hints},
		{&lists.tags, problem.Tags},
		{&lists.keyInsights, problem.KeyInsights},
		{&lists.testCases, problem.TestCases},
	} {
		raw, err := json.Marshal(field.src)
		if err != nil {
			return problemLists{}, err
		}
		*field.dest = raw
	}
	return lists, nil
}

// marshalReport returns an untyped nil for a nil report so the column
// stores NULL.
func marshalReport(report *types.ValidationReport) (any, error) {
	if report == nil {
		return nil, nil
	}
	normalized := *report
	types.NormalizeReport(&normalized)
	raw, err := json.Marshal(normalized)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
