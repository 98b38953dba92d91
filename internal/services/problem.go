package services

import (
	"context"
	"errors"

	"github.com/jjudge-oj/problemgen/internal/pipeline"
	"github.com/jjudge-oj/problemgen/internal/store"
	"github.com/jjudge-oj/problemgen/types"
	"go.uber.org/zap"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// ProblemRepository defines persistence operations for problems.
type ProblemRepository interface {
	List(ctx context.Context, owner string, filter types.ProblemFilter, offset, limit int) ([]types.Problem, int, error)
	Get(ctx context.Context, id, owner string) (types.Problem, error)
	ToggleFavorite(ctx context.Context, id, owner string) (types.Problem, error)
	Delete(ctx context.Context, id, owner string) error
}

// ProblemCreator runs problem creation and schedules enrichment.
type ProblemCreator interface {
	Create(ctx context.Context, owner string, req pipeline.CreateRequest) (types.Problem, error)
}

// TestcaseCleaner removes the testcase set attached to a problem.
type TestcaseCleaner interface {
	Delete(ctx context.Context, owner, problemID string) error
}

// StatusView is the pollable enrichment state of a problem.
type StatusView struct {
	ID               string                  `json:"id"`
	Status           types.ValidationStatus  `json:"status"`
	ValidationReport *types.ValidationReport `json:"validationReport"`
	TestCases        []types.TestCase        `json:"testCases"`
}

// ProblemService encapsulates problem use-cases. Every method is scoped to
// owner; a problem owned by someone else is reported as store.ErrNotFound.
type ProblemService struct {
	repo      ProblemRepository
	creator   ProblemCreator
	testcases TestcaseCleaner
	logger    *zap.Logger
}

func NewProblemService(repo ProblemRepository, creator ProblemCreator, testcases TestcaseCleaner, logger *zap.Logger) *ProblemService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProblemService{repo: repo, creator: creator, testcases: testcases, logger: logger}
}

func (s *ProblemService) Create(ctx context.Context, owner string, req pipeline.CreateRequest) (types.Problem, error) {
	return s.creator.Create(ctx, owner, req)
}

func (s *ProblemService) Get(ctx context.Context, owner, id string) (types.Problem, error) {
	return s.repo.Get(ctx, id, owner)
}

// Status reads the latest committed pipeline state.
func (s *ProblemService) Status(ctx context.Context, owner, id string) (StatusView, error) {
	problem, err := s.repo.Get(ctx, id, owner)
	if err != nil {
		return StatusView{}, err
	}
	testCases := problem.TestCases
	if testCases == nil {
		testCases = []types.TestCase{}
	}
	return StatusView{
		ID:               problem.ID,
		Status:           problem.ValidationStatus,
		ValidationReport: problem.ValidationReport,
		TestCases:        testCases,
	}, nil
}

// List returns one page of the owner's problems, newest first.
func (s *ProblemService) List(ctx context.Context, owner string, filter types.ProblemFilter, page, limit int) (Page[types.Problem], error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	items, total, err := s.repo.List(ctx, owner, filter, (page-1)*limit, limit)
	if err != nil {
		return Page[types.Problem]{}, err
	}
	return NewPage(items, page, limit, total), nil
}

func (s *ProblemService) ToggleFavorite(ctx context.Context, owner, id string) (types.Problem, error) {
	return s.repo.ToggleFavorite(ctx, id, owner)
}

// Delete removes the problem and, best effort, its testcase set. An
// enrichment run still in flight for the problem becomes a no-op.
func (s *ProblemService) Delete(ctx context.Context, owner, id string) error {
	if err := s.repo.Delete(ctx, id, owner); err != nil {
		return err
	}
	if s.testcases == nil {
		return nil
	}
	if err := s.testcases.Delete(ctx, owner, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("failed to delete testcase set of deleted problem",
			zap.String("problem_id", id),
			zap.String("owner", owner),
			zap.Error(err),
		)
	}
	return nil
}
