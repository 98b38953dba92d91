package generator

import (
	"context"
	"strings"
	"time"

	"github.com/jjudge-oj/problemgen/types"
	"go.uber.org/zap"
)

// ProblemRequest is the input of a problem generation call.
type ProblemRequest struct {
	Topics     []string
	Rating     string
	Suggestion string
}

// ProblemContent is the generated part of a problem.
type ProblemContent struct {
	Title           string
	Description     string
	Examples        []types.Example
	Constraints     []string
	Hints           []string
	Tags            []string
	Difficulty      string
	TimeComplexity  string
	SpaceComplexity string
	Approach        string
	KeyInsights     []string
}

// ValidationRequest is the input of a validation call.
type ValidationRequest struct {
	Problem   types.Problem
	TestCases []types.TestCase
}

// Generator turns typed requests into prompts, calls the model and parses
// its answers into typed results.
type Generator struct {
	client  TextClient
	prompts *PromptManager
	logger  *zap.Logger
}

func New(client TextClient, prompts *PromptManager, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{client: client, prompts: prompts, logger: logger}
}

func (g *Generator) GenerateProblem(ctx context.Context, req ProblemRequest) (ProblemContent, error) {
	var content ProblemContent
	err := g.call(ctx, KindProblem, req, func(text string) error {
		var err error
		content, err = parseProblem(text, req.Rating)
		return err
	})
	return content, err
}

// GenerateTestcases produces a fresh set of categorized test cases for p.
func (g *Generator) GenerateTestcases(ctx context.Context, p types.Problem) ([]types.GeneratedTestcase, error) {
	var cases []types.GeneratedTestcase
	err := g.call(ctx, KindTestcases, p, func(text string) error {
		var err error
		cases, err = parseTestcases(text)
		return err
	})
	return cases, err
}

// Validate asks the model to judge req.TestCases against the problem. The
// returned report has exactly one result per test case.
func (g *Generator) Validate(ctx context.Context, req ValidationRequest) (types.ValidationReport, error) {
	var report types.ValidationReport
	err := g.call(ctx, KindValidation, req, func(text string) error {
		var err error
		report, err = parseValidation(text, len(req.TestCases))
		return err
	})
	return report, err
}

// Prompt input limits for solution generation. Long statements crowd out
// the code in the answer.
const (
	solutionDescriptionLimit = 600
	solutionConstraintsLimit = 200
	solutionExampleLimit     = 2
)

// solutionRequest is the trimmed view of a problem rendered into the
// solution prompt.
type solutionRequest struct {
	Title       string
	Description string
	Examples    []types.Example
	Constraints string
}

func solutionPrompt(p types.Problem) solutionRequest {
	examples := p.Examples
	if len(examples) > solutionExampleLimit {
		examples = examples[:solutionExampleLimit]
	}
	return solutionRequest{
		Title:       p.Title,
		Description: truncate(p.Description, solutionDescriptionLimit),
		Examples:    examples,
		Constraints: truncate(strings.Join(p.Constraints, "; "), solutionConstraintsLimit),
	}
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

// GenerateSolution writes a reference solution for p. Complexities the model
// leaves out fall back to the problem's own.
func (g *Generator) GenerateSolution(ctx context.Context, p types.Problem) (types.Solution, error) {
	var solution types.Solution
	err := g.call(ctx, KindSolution, solutionPrompt(p), func(text string) error {
		var err error
		solution, err = parseSolution(text, p)
		return err
	})
	return solution, err
}

func (g *Generator) call(ctx context.Context, kind Kind, data any, parse func(string) error) (err error) {
	start := time.Now()
	defer func() {
		callsTotal.WithLabelValues(string(kind), ClassName(err)).Inc()
		callDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}()

	prompt, err := g.prompts.Render(kind, data)
	if err != nil {
		return withKind(kind, err)
	}

	text, err := g.client.GenerateText(ctx, prompt)
	if err != nil {
		err = withKind(kind, err)
		g.logger.Warn("generator call failed", zap.String("kind", string(kind)), zap.Error(err))
		return err
	}

	if err := parse(text); err != nil {
		err = withKind(kind, err)
		g.logger.Warn("generator output rejected",
			zap.String("kind", string(kind)),
			zap.Int("response_length", len(text)),
			zap.Error(err),
		)
		return err
	}

	g.logger.Debug("generator call succeeded",
		zap.String("kind", string(kind)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}
