package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jjudge-oj/problemgen/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProblem(owner string) types.Problem {
	return types.Problem{
		ID:               uuid.NewString(),
		UserID:           owner,
		Topics:           []string{"graphs"},
		Rating:           "1200",
		Title:            "Shortest Route",
		Description:      "Find the shortest route.",
		ValidationStatus: types.StatusRunning,
	}
}

func TestMemoryProblemListPaginatesNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProblemRepository()

	var ids []string
	for i := 0; i < 25; i++ {
		created, err := repo.Create(ctx, newProblem("alice"))
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}
	_, err := repo.Create(ctx, newProblem("bob"))
	require.NoError(t, err)

	page, total, err := repo.List(ctx, "alice", types.ProblemFilter{}, 20, 10)
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	require.Len(t, page, 5)
	// The last page holds the five oldest records.
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[0], page[4].ID)

	first, _, err := repo.List(ctx, "alice", types.ProblemFilter{}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, ids[24], first[0].ID)

	empty, total, err := repo.List(ctx, "alice", types.ProblemFilter{}, 30, 10)
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	assert.Empty(t, empty)
}

func TestMemoryProblemOwnerIsolation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProblemRepository()

	created, err := repo.Create(ctx, newProblem("alice"))
	require.NoError(t, err)

	_, err = repo.Get(ctx, created.ID, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.ToggleFavorite(ctx, created.ID, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, created.ID, "bob"), ErrNotFound)

	got, err := repo.Get(ctx, created.ID, "alice")
	require.NoError(t, err)
	assert.False(t, got.IsFavorited)
}

func TestMemoryProblemUpdateAfterDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProblemRepository()

	created, err := repo.Create(ctx, newProblem("alice"))
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, created.ID, "alice"))

	status := types.StatusCompleted
	_, err = repo.UpdateFields(ctx, created.ID, types.ProblemUpdate{ValidationStatus: &status})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryProblemToggleFavoriteTwice(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProblemRepository()
	created, err := repo.Create(ctx, newProblem("alice"))
	require.NoError(t, err)

	once, err := repo.ToggleFavorite(ctx, created.ID, "alice")
	require.NoError(t, err)
	assert.True(t, once.IsFavorited)

	favorites, total, err := repo.List(ctx, "alice", types.ProblemFilter{FavoritesOnly: true}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, favorites, 1)

	twice, err := repo.ToggleFavorite(ctx, created.ID, "alice")
	require.NoError(t, err)
	assert.False(t, twice.IsFavorited)
}

func TestMemoryProblemUpdateFieldsIsPartial(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProblemRepository()
	created, err := repo.Create(ctx, newProblem("alice"))
	require.NoError(t, err)

	cases := []types.TestCase{{Input: "1", Output: "2"}}
	updated, err := repo.UpdateFields(ctx, created.ID, types.ProblemUpdate{TestCases: &cases})
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, updated.ValidationStatus)
	assert.Equal(t, cases, updated.TestCases)
	assert.Equal(t, created.Title, updated.Title)

	// Mutating the returned value does not leak into the repository.
	updated.TestCases[0].Input = "changed"
	got, err := repo.Get(ctx, created.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1", got.TestCases[0].Input)
}

func TestMemoryProblemUpdateFieldsExpectStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProblemRepository()
	created, err := repo.Create(ctx, newProblem("alice"))
	require.NoError(t, err)

	running := types.StatusRunning
	failed := types.StatusFailed
	completed := types.StatusCompleted

	_, err = repo.UpdateFields(ctx, created.ID, types.ProblemUpdate{ValidationStatus: &failed, ExpectStatus: &running})
	require.NoError(t, err)

	_, err = repo.UpdateFields(ctx, created.ID, types.ProblemUpdate{ValidationStatus: &completed, ExpectStatus: &running})
	assert.ErrorIs(t, err, ErrStatusMismatch)

	got, err := repo.Get(ctx, created.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.ValidationStatus)

	_, err = repo.UpdateFields(ctx, "missing", types.ProblemUpdate{ValidationStatus: &completed, ExpectStatus: &running})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryProblemFailStale(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProblemRepository()

	running, err := repo.Create(ctx, newProblem("alice"))
	require.NoError(t, err)
	done := newProblem("alice")
	done.ValidationStatus = types.StatusCompleted
	done, err = repo.Create(ctx, done)
	require.NoError(t, err)

	failed, err := repo.FailStale(ctx, time.Now().Add(-time.Hour), types.ValidationReport{Summary: "late"})
	require.NoError(t, err)
	assert.Zero(t, failed)

	failed, err = repo.FailStale(ctx, time.Now().Add(time.Second), types.ValidationReport{Summary: "late"})
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	got, err := repo.Get(ctx, running.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.ValidationStatus)
	require.NotNil(t, got.ValidationReport)
	assert.Equal(t, "late", got.ValidationReport.Summary)

	untouched, err := repo.Get(ctx, done.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, untouched.ValidationStatus)
}

func TestMemoryProblemFilterByStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProblemRepository()
	_, err := repo.Create(ctx, newProblem("alice"))
	require.NoError(t, err)
	failed := newProblem("alice")
	failed.ValidationStatus = types.StatusFailed
	_, err = repo.Create(ctx, failed)
	require.NoError(t, err)

	items, total, err := repo.List(ctx, "alice", types.ProblemFilter{Status: types.StatusFailed}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, failed.ID, items[0].ID)
}

func TestMemoryTestcaseLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTestcaseRepository()
	problemID := uuid.NewString()

	set := types.TestcaseSet{
		ID:        uuid.NewString(),
		ProblemID: problemID,
		UserID:    "alice",
		Testcases: []types.GeneratedTestcase{{Type: types.TestcaseBase, Input: "1", Output: "1"}},
	}
	created, err := repo.Create(ctx, set)
	require.NoError(t, err)

	set.ID = uuid.NewString()
	_, err = repo.Create(ctx, set)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = repo.Get(ctx, problemID, "bob")
	assert.ErrorIs(t, err, ErrNotFound)

	set.Testcases = []types.GeneratedTestcase{{Type: types.TestcaseEdge, Input: "0", Output: "0"}}
	replaced, err := repo.Replace(ctx, set)
	require.NoError(t, err)
	assert.Equal(t, created.ID, replaced.ID)
	assert.Equal(t, created.CreatedAt, replaced.CreatedAt)
	assert.Equal(t, types.TestcaseEdge, replaced.Testcases[0].Type)

	require.NoError(t, repo.Delete(ctx, problemID, "alice"))
	assert.ErrorIs(t, repo.Delete(ctx, problemID, "alice"), ErrNotFound)
}

func TestMemoryUserUniqueUsername(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	user, err := repo.Create(ctx, types.User{ID: uuid.NewString(), Username: "alice"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, types.User{ID: uuid.NewString(), Username: "alice"})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}
