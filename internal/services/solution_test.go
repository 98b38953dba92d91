package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jjudge-oj/problemgen/internal/store"
	"github.com/jjudge-oj/problemgen/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSolutionGenerator struct {
	calls int
	err   error
}

func (f *fakeSolutionGenerator) GenerateSolution(_ context.Context, problem types.Problem) (types.Solution, error) {
	f.calls++
	if f.err != nil {
		return types.Solution{}, f.err
	}
	return types.Solution{
		AlgorithmExplanation: "Solve " + problem.Title,
		Codes:                []types.SolutionCode{{Language: "cpp", Code: "int main() {}"}},
	}, nil
}

func TestSolutionGenerateStampsProblem(t *testing.T) {
	problems := store.NewMemoryProblemRepository()
	gen := &fakeSolutionGenerator{}
	svc := NewSolutionService(problems, gen, nil)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	problem := seedProblems(t, problems, "alice", 1)[0]

	solution, err := svc.Generate(context.Background(), "alice", problem.ID)
	require.NoError(t, err)
	assert.Equal(t, problem.ID, solution.ProblemID)
	assert.Equal(t, fixed, solution.GeneratedAt)
	assert.Len(t, solution.Codes, 1)
}

func TestSolutionGenerateIsOwnerScoped(t *testing.T) {
	problems := store.NewMemoryProblemRepository()
	gen := &fakeSolutionGenerator{}
	svc := NewSolutionService(problems, gen, nil)
	problem := seedProblems(t, problems, "alice", 1)[0]

	_, err := svc.Generate(context.Background(), "bob", problem.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, gen.calls)

	gen.err = errors.New("provider down")
	_, err = svc.Generate(context.Background(), "alice", problem.ID)
	assert.ErrorIs(t, err, gen.err)
}
