package services

import (
	"context"
	"time"

	"github.com/jjudge-oj/problemgen/types"
	"go.uber.org/zap"
)

// SolutionGenerator writes reference solutions.
type SolutionGenerator interface {
	GenerateSolution(ctx context.Context, problem types.Problem) (types.Solution, error)
}

// SolutionService generates reference solutions for an owner's problems.
// Solutions are returned to the caller and not stored.
type SolutionService struct {
	problems ProblemReader
	gen      SolutionGenerator
	logger   *zap.Logger
	now      func() time.Time
}

func NewSolutionService(problems ProblemReader, gen SolutionGenerator, logger *zap.Logger) *SolutionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SolutionService{
		problems: problems,
		gen:      gen,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Generate returns a fresh reference solution for the owner's problem.
// store.ErrNotFound is returned unchanged when the owner has no such problem.
func (s *SolutionService) Generate(ctx context.Context, owner, problemID string) (types.Solution, error) {
	problem, err := s.problems.Get(ctx, problemID, owner)
	if err != nil {
		return types.Solution{}, err
	}

	solution, err := s.gen.GenerateSolution(ctx, problem)
	if err != nil {
		return types.Solution{}, err
	}
	solution.ProblemID = problem.ID
	solution.GeneratedAt = s.now()

	s.logger.Info("solution generated",
		zap.String("problem_id", problem.ID),
		zap.String("owner", owner),
		zap.Int("languages", len(solution.Codes)),
	)
	return solution, nil
}
