package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jjudge-oj/problemgen/types"
)

// MemoryProblemRepository keeps problems in process memory. It is used by the
// memory store driver and in tests.
type MemoryProblemRepository struct {
	mu       sync.RWMutex
	seq      int64
	problems map[string]memoryProblem
}

type memoryProblem struct {
	seq     int64
	problem types.Problem
}

func NewMemoryProblemRepository() *MemoryProblemRepository {
	return &MemoryProblemRepository{problems: make(map[string]memoryProblem)}
}

func (r *MemoryProblemRepository) List(_ context.Context, owner string, filter types.ProblemFilter, offset, limit int) ([]types.Problem, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}

	r.mu.RLock()
	matched := make([]memoryProblem, 0, len(r.problems))
	for _, entry := range r.problems {
		p := entry.problem
		if p.UserID != owner {
			continue
		}
		if filter.FavoritesOnly && !p.IsFavorited {
			continue
		}
		if filter.Status != "" && p.ValidationStatus != filter.Status {
			continue
		}
		matched = append(matched, entry)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.problem.CreatedAt.Equal(b.problem.CreatedAt) {
			return a.problem.CreatedAt.After(b.problem.CreatedAt)
		}
		return a.seq > b.seq
	})

	total := len(matched)
	if offset >= total {
		return []types.Problem{}, total, nil
	}
	end := min(offset+limit, total)
	problems := make([]types.Problem, 0, end-offset)
	for _, entry := range matched[offset:end] {
		problems = append(problems, cloneProblem(entry.problem))
	}
	return problems, total, nil
}

func (r *MemoryProblemRepository) Get(_ context.Context, id, owner string) (types.Problem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.problems[id]
	if !ok || entry.problem.UserID != owner {
		return types.Problem{}, ErrNotFound
	}
	return cloneProblem(entry.problem), nil
}

func (r *MemoryProblemRepository) Create(_ context.Context, problem types.Problem) (types.Problem, error) {
	now := time.Now().UTC()
	problem.CreatedAt = now
	problem.UpdatedAt = now
	if problem.GeneratedAt.IsZero() {
		problem.GeneratedAt = now
	}
	types.NormalizeProblem(&problem)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.problems[problem.ID]; exists {
		return types.Problem{}, ErrConflict
	}
	r.seq++
	r.problems[problem.ID] = memoryProblem{seq: r.seq, problem: cloneProblem(problem)}
	return cloneProblem(problem), nil
}

func (r *MemoryProblemRepository) UpdateFields(_ context.Context, id string, update types.ProblemUpdate) (types.Problem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.problems[id]
	if !ok {
		return types.Problem{}, ErrNotFound
	}
	if update.ExpectStatus != nil && entry.problem.ValidationStatus != *update.ExpectStatus {
		return types.Problem{}, ErrStatusMismatch
	}
	update.Apply(&entry.problem)
	entry.problem.UpdatedAt = time.Now().UTC()
	entry.problem = cloneProblem(entry.problem)
	r.problems[id] = entry
	return cloneProblem(entry.problem), nil
}

func (r *MemoryProblemRepository) ToggleFavorite(_ context.Context, id, owner string) (types.Problem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.problems[id]
	if !ok || entry.problem.UserID != owner {
		return types.Problem{}, ErrNotFound
	}
	entry.problem.IsFavorited = !entry.problem.IsFavorited
	entry.problem.UpdatedAt = time.Now().UTC()
	r.problems[id] = entry
	return cloneProblem(entry.problem), nil
}

func (r *MemoryProblemRepository) Delete(_ context.Context, id, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.problems[id]
	if !ok || entry.problem.UserID != owner {
		return ErrNotFound
	}
	delete(r.problems, id)
	return nil
}

func (r *MemoryProblemRepository) FailStale(_ context.Context, cutoff time.Time, report types.ValidationReport) (int, error) {
	types.NormalizeReport(&report)
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	failed := 0
	for id, entry := range r.problems {
		if entry.problem.ValidationStatus != types.StatusRunning || !entry.problem.UpdatedAt.Before(cutoff) {
			continue
		}
		stamped := report
		entry.problem.ValidationStatus = types.StatusFailed
		entry.problem.ValidationReport = &stamped
		entry.problem.UpdatedAt = now
		entry.problem = cloneProblem(entry.problem)
		r.problems[id] = entry
		failed++
	}
	return failed, nil
}

func (r *MemoryProblemRepository) Ping(context.Context) error {
	return nil
}

// MemoryTestcaseRepository keeps testcase sets keyed by problem and owner.
type MemoryTestcaseRepository struct {
	mu   sync.RWMutex
	sets map[testcaseKey]types.TestcaseSet
}

type testcaseKey struct {
	problemID string
	owner     string
}

func NewMemoryTestcaseRepository() *MemoryTestcaseRepository {
	return &MemoryTestcaseRepository{sets: make(map[testcaseKey]types.TestcaseSet)}
}

func (r *MemoryTestcaseRepository) Get(_ context.Context, problemID, owner string) (types.TestcaseSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.sets[testcaseKey{problemID, owner}]
	if !ok {
		return types.TestcaseSet{}, ErrNotFound
	}
	return cloneTestcaseSet(set), nil
}

func (r *MemoryTestcaseRepository) Create(_ context.Context, set types.TestcaseSet) (types.TestcaseSet, error) {
	now := time.Now().UTC()
	set.CreatedAt = now
	set.UpdatedAt = now
	if set.GeneratedAt.IsZero() {
		set.GeneratedAt = now
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := testcaseKey{set.ProblemID, set.UserID}
	if _, exists := r.sets[key]; exists {
		return types.TestcaseSet{}, ErrConflict
	}
	r.sets[key] = cloneTestcaseSet(set)
	return cloneTestcaseSet(set), nil
}

func (r *MemoryTestcaseRepository) Replace(_ context.Context, set types.TestcaseSet) (types.TestcaseSet, error) {
	now := time.Now().UTC()
	if set.GeneratedAt.IsZero() {
		set.GeneratedAt = now
	}
	set.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	key := testcaseKey{set.ProblemID, set.UserID}
	if existing, ok := r.sets[key]; ok {
		set.ID = existing.ID
		set.CreatedAt = existing.CreatedAt
	} else {
		set.CreatedAt = now
	}
	r.sets[key] = cloneTestcaseSet(set)
	return cloneTestcaseSet(set), nil
}

func (r *MemoryTestcaseRepository) Delete(_ context.Context, problemID, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := testcaseKey{problemID, owner}
	if _, ok := r.sets[key]; !ok {
		return ErrNotFound
	}
	delete(r.sets, key)
	return nil
}

// MemoryUserRepository keeps users keyed by id with a username index.
type MemoryUserRepository struct {
	mu         sync.RWMutex
	users      map[string]types.User
	byUsername map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:      make(map[string]types.User),
		byUsername: make(map[string]string),
	}
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) GetByUsername(_ context.Context, username string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUsername[username]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return r.users[id], nil
}

func (r *MemoryUserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byUsername[user.Username]; taken {
		return types.User{}, ErrConflict
	}
	if _, taken := r.users[user.ID]; taken {
		return types.User{}, ErrConflict
	}
	r.users[user.ID] = user
	r.byUsername[user.Username] = user.ID
	return user, nil
}

func cloneProblem(p types.Problem) types.Problem {
	p.Topics = append([]string{}, p.Topics...)
	p.Examples = append([]types.Example{}, p.Examples...)
	p.Constraints = append([]string{}, p.Constraints...)
	p.Hints = append([]string{}, p.Hints...)
	p.Tags = append([]string{}, p.Tags...)
	p.KeyInsights = append([]string{}, p.KeyInsights...)
	p.TestCases = append([]types.TestCase{}, p.TestCases...)
	if p.ValidationReport != nil {
		report := *p.ValidationReport
		report.Strengths = append([]string{}, report.Strengths...)
		report.Weaknesses = append([]string{}, report.Weaknesses...)
		report.Recommendations = append([]string{}, report.Recommendations...)
		results := make([]types.TestCaseResult, len(report.TestCaseResults))
		for i, result := range report.TestCaseResults {
			result.Issues = append([]string{}, result.Issues...)
			result.Suggestions = append([]string{}, result.Suggestions...)
			results[i] = result
		}
		report.TestCaseResults = results
		p.ValidationReport = &report
	}
	return p
}

func cloneTestcaseSet(set types.TestcaseSet) types.TestcaseSet {
	set.Testcases = append([]types.GeneratedTestcase{}, set.Testcases...)
	return set
}
