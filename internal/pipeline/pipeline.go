package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jjudge-oj/problemgen/config"
	"github.com/jjudge-oj/problemgen/internal/generator"
	"github.com/jjudge-oj/problemgen/internal/store"
	"github.com/jjudge-oj/problemgen/types"
	"go.uber.org/zap"
)

// ProblemStore is the slice of the record store the pipeline reads and writes.
type ProblemStore interface {
	Create(ctx context.Context, problem types.Problem) (types.Problem, error)
	Get(ctx context.Context, id, owner string) (types.Problem, error)
	UpdateFields(ctx context.Context, id string, update types.ProblemUpdate) (types.Problem, error)
}

// Generator is the AI capability used by the pipeline.
type Generator interface {
	GenerateProblem(ctx context.Context, req generator.ProblemRequest) (generator.ProblemContent, error)
	GenerateTestcases(ctx context.Context, problem types.Problem) ([]types.GeneratedTestcase, error)
	Validate(ctx context.Context, req generator.ValidationRequest) (types.ValidationReport, error)
}

// CreateRequest carries the client's generation parameters.
type CreateRequest struct {
	Topics     []string
	Rating     string
	Suggestion string
}

// Outcome is how one asynchronous run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeDeleted means the record disappeared while the run was in flight.
	OutcomeDeleted Outcome = "deleted"
	// OutcomeSkipped means a queued job found the record no longer running.
	OutcomeSkipped Outcome = "skipped"
)

const scheduleFailureSummary = "could not schedule validation"

// Options tune a Pipeline.
type Options struct {
	// TestcaseSource is config.TestcaseSourceExamples (default) or
	// config.TestcaseSourceGenerator.
	TestcaseSource string

	// Publisher hands runs to a queue. When nil runs execute on local
	// goroutines.
	Publisher Publisher

	Now func() time.Time
}

// Pipeline creates problems and drives their asynchronous enrichment.
type Pipeline struct {
	store     ProblemStore
	gen       Generator
	publisher Publisher
	source    string
	logger    *zap.Logger
	now       func() time.Time

	inflight sync.WaitGroup
}

func New(problems ProblemStore, gen Generator, logger *zap.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.TestcaseSource == "" {
		opts.TestcaseSource = config.TestcaseSourceExamples
	}
	return &Pipeline{
		store:     problems,
		gen:       gen,
		publisher: opts.Publisher,
		source:    opts.TestcaseSource,
		logger:    logger,
		now:       opts.Now,
	}
}

// Create runs the synchronous phase: it generates the problem, persists it
// as running and schedules the asynchronous phase. A generator or store
// failure aborts creation and nothing is persisted.
func (p *Pipeline) Create(ctx context.Context, owner string, req CreateRequest) (types.Problem, error) {
	content, err := p.gen.GenerateProblem(ctx, generator.ProblemRequest{
		Topics:     req.Topics,
		Rating:     req.Rating,
		Suggestion: req.Suggestion,
	})
	if err != nil {
		return types.Problem{}, fmt.Errorf("generate problem: %w", err)
	}

	problem := types.Problem{
		ID:               uuid.NewString(),
		UserID:           owner,
		Topics:           req.Topics,
		Rating:           types.Rating(req.Rating),
		Suggestion:       req.Suggestion,
		Title:            content.Title,
		Description:      content.Description,
		Examples:         content.Examples,
		Constraints:      content.Constraints,
		Hints:            content.Hints,
		Tags:             content.Tags,
		Difficulty:       content.Difficulty,
		TimeComplexity:   content.TimeComplexity,
		SpaceComplexity:  content.SpaceComplexity,
		Approach:         content.Approach,
		KeyInsights:      content.KeyInsights,
		TestCases:        []types.TestCase{},
		ValidationStatus: types.StatusRunning,
		GeneratedAt:      p.now(),
	}

	created, err := p.store.Create(ctx, problem)
	if err != nil {
		return types.Problem{}, fmt.Errorf("persist problem: %w", err)
	}
	runsStarted.Inc()
	p.logger.Info("problem created",
		zap.String("problem_id", created.ID),
		zap.String("owner", owner),
		zap.String("status", string(created.ValidationStatus)),
	)

	p.schedule(context.WithoutCancel(ctx), created)
	return created, nil
}

func (p *Pipeline) schedule(ctx context.Context, problem types.Problem) {
	if p.publisher == nil {
		p.inflight.Add(1)
		inflightRuns.Inc()
		go func() {
			defer p.inflight.Done()
			defer inflightRuns.Dec()
			p.run(ctx, problem)
		}()
		return
	}

	job := Job{ProblemID: problem.ID, Owner: problem.UserID}
	if err := p.publisher.Publish(ctx, job); err != nil {
		p.logger.Error("failed to publish enrichment job",
			zap.String("problem_id", problem.ID),
			zap.Error(err),
		)
		outcome := p.fail(ctx, problem, scheduleFailureSummary)
		runsTotal.WithLabelValues(string(outcome)).Inc()
	}
}

// Wait blocks until every locally dispatched run has finished or ctx ends.
func (p *Pipeline) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enrich runs the asynchronous phase for a queued job. Jobs for records that
// are missing or no longer running are skipped, so a redelivered message
// never starts a second run.
func (p *Pipeline) Enrich(ctx context.Context, job Job) Outcome {
	problem, err := p.store.Get(ctx, job.ProblemID, job.Owner)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			runsTotal.WithLabelValues(string(OutcomeSkipped)).Inc()
			return OutcomeSkipped
		}
		// The record stays running and the reaper will fail it.
		p.logger.Error("failed to load problem for enrichment",
			zap.String("problem_id", job.ProblemID),
			zap.Error(err),
		)
		runsTotal.WithLabelValues(string(OutcomeSkipped)).Inc()
		return OutcomeSkipped
	}
	if problem.ValidationStatus != types.StatusRunning {
		p.logger.Info("skipping enrichment for settled problem",
			zap.String("problem_id", problem.ID),
			zap.String("status", string(problem.ValidationStatus)),
		)
		runsTotal.WithLabelValues(string(OutcomeSkipped)).Inc()
		return OutcomeSkipped
	}
	return p.run(ctx, problem)
}

// run derives test cases, validates them and always leaves the record terminal unless
// it was deleted, settled elsewhere, or the store itself is unreachable. Every
// write is conditional on the record still being running so a reaped run is
// never overwritten.
func (p *Pipeline) run(ctx context.Context, problem types.Problem) (outcome Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			outcome = p.failAfterPanic(ctx, problem, r)
		}
		runsTotal.WithLabelValues(string(outcome)).Inc()
		runDuration.WithLabelValues(string(outcome)).Observe(time.Since(start).Seconds())
	}()

	running := types.StatusRunning

	testCases, err := p.deriveTestCases(ctx, problem)
	if err != nil {
		return p.fail(ctx, problem, failureSummary("test case generation", err))
	}

	updated, err := p.store.UpdateFields(ctx, problem.ID, types.ProblemUpdate{
		TestCases:    &testCases,
		ExpectStatus: &running,
	})
	if err != nil {
		if outcome, ok := p.gone(problem, err); ok {
			return outcome
		}
		return p.fail(ctx, problem, failureSummary("saving test cases", err))
	}
	p.logger.Debug("test cases persisted",
		zap.String("problem_id", problem.ID),
		zap.Int("count", len(testCases)),
	)

	report, err := p.gen.Validate(ctx, generator.ValidationRequest{Problem: updated, TestCases: testCases})
	if err != nil {
		return p.fail(ctx, problem, failureSummary("validation", err))
	}
	report.ValidatedAt = p.now()
	types.NormalizeReport(&report)

	completed := types.StatusCompleted
	if _, err := p.store.UpdateFields(ctx, problem.ID, types.ProblemUpdate{
		ValidationStatus: &completed,
		ValidationReport: &report,
		ExpectStatus:     &running,
	}); err != nil {
		if outcome, ok := p.gone(problem, err); ok {
			return outcome
		}
		return p.fail(ctx, problem, failureSummary("saving the validation report", err))
	}

	p.logger.Info("problem validated",
		zap.String("problem_id", problem.ID),
		zap.String("owner", problem.UserID),
		zap.String("status", string(completed)),
		zap.Float64("overall_score", report.OverallScore),
		zap.Bool("is_valid", report.IsValid),
	)
	return OutcomeCompleted
}

// failAfterPanic records the failure for a panicking run. A second panic from
// the store is contained here so it never escapes the worker goroutine.
func (p *Pipeline) failAfterPanic(ctx context.Context, problem types.Problem, r any) (outcome Outcome) {
	p.logger.Error("enrichment panicked",
		zap.String("problem_id", problem.ID),
		zap.Any("panic", r),
		zap.Stack("stack"),
	)
	defer func() {
		if r2 := recover(); r2 != nil {
			p.logger.Error("recording the panic failure panicked",
				zap.String("problem_id", problem.ID),
				zap.Any("panic", r2),
			)
			outcome = OutcomeFailed
		}
	}()
	return p.fail(ctx, problem, fmt.Sprintf("validation aborted by an internal error: %v", r))
}

func (p *Pipeline) deriveTestCases(ctx context.Context, problem types.Problem) ([]types.TestCase, error) {
	if p.source == config.TestcaseSourceGenerator {
		generated, err := p.gen.GenerateTestcases(ctx, problem)
		if err != nil {
			return nil, err
		}
		cases := make([]types.TestCase, 0, len(generated))
		for _, tc := range generated {
			cases = append(cases, types.TestCase{Input: tc.Input, Output: tc.Output, Explanation: string(tc.Type)})
		}
		return cases, nil
	}

	if len(problem.Examples) == 0 {
		return nil, errors.New("the problem has no examples to derive test cases from")
	}
	cases := make([]types.TestCase, 0, len(problem.Examples))
	for _, ex := range problem.Examples {
		cases = append(cases, types.TestCase{Input: ex.Input, Output: ex.Output, Explanation: ex.Explanation})
	}
	return cases, nil
}

// fail records a terminal failure, leaving test cases already persisted in
// place.
func (p *Pipeline) fail(ctx context.Context, problem types.Problem, summary string) Outcome {
	running := types.StatusRunning
	failed := types.StatusFailed
	report := types.ValidationReport{
		IsValid:     false,
		Summary:     summary,
		ValidatedAt: p.now(),
	}
	types.NormalizeReport(&report)

	_, err := p.store.UpdateFields(ctx, problem.ID, types.ProblemUpdate{
		ValidationStatus: &failed,
		ValidationReport: &report,
		ExpectStatus:     &running,
	})
	if err != nil {
		if outcome, ok := p.gone(problem, err); ok {
			return outcome
		}
		p.logger.Error("failed to record pipeline failure",
			zap.String("problem_id", problem.ID),
			zap.String("summary", summary),
			zap.Error(err),
		)
		return OutcomeFailed
	}

	p.logger.Warn("problem validation failed",
		zap.String("problem_id", problem.ID),
		zap.String("owner", problem.UserID),
		zap.String("status", string(failed)),
		zap.String("summary", summary),
	)
	return OutcomeFailed
}

// gone maps a conditional write that found the record deleted or already
// settled to the matching outcome.
func (p *Pipeline) gone(problem types.Problem, err error) (Outcome, bool) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		p.logger.Info("problem deleted during enrichment",
			zap.String("problem_id", problem.ID),
			zap.String("owner", problem.UserID),
		)
		return OutcomeDeleted, true
	case errors.Is(err, store.ErrStatusMismatch):
		p.logger.Info("problem settled during enrichment, discarding result",
			zap.String("problem_id", problem.ID),
			zap.String("owner", problem.UserID),
		)
		return OutcomeSkipped, true
	}
	return "", false
}

// failureSummary turns an error from stage into a readable explanation that
// distinguishes unusable output from a failed or blocked provider call.
func failureSummary(stage string, err error) string {
	var reason string
	switch {
	case errors.Is(err, generator.ErrParse):
		reason = "the AI produced unusable output"
	case errors.Is(err, generator.ErrProviderBlocked):
		reason = "the AI provider blocked the request"
	case errors.Is(err, generator.ErrProvider):
		reason = "the AI provider call failed"
	default:
		return fmt.Sprintf("%s failed: %v", capitalize(stage), err)
	}

	detail := err.Error()
	var genErr *generator.Error
	if errors.As(err, &genErr) && genErr.Message != "" {
		detail = genErr.Message
		if genErr.Err != nil {
			detail += ": " + genErr.Err.Error()
		}
	}
	return fmt.Sprintf("%s failed: %s (%s)", capitalize(stage), reason, detail)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
