package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jjudge-oj/problemgen/internal/pipeline"
	"github.com/jjudge-oj/problemgen/internal/store"
	"github.com/jjudge-oj/problemgen/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProblems(t *testing.T, repo *store.MemoryProblemRepository, owner string, n int) []types.Problem {
	t.Helper()
	out := make([]types.Problem, 0, n)
	for i := 0; i < n; i++ {
		p, err := repo.Create(context.Background(), types.Problem{
			ID:               uuid.NewString(),
			UserID:           owner,
			Title:            fmt.Sprintf("Problem %d", i),
			ValidationStatus: types.StatusRunning,
		})
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func TestNewPage(t *testing.T) {
	page := NewPage([]int{1, 2, 3, 4, 5}, 3, 10, 25)
	assert.Equal(t, 3, page.TotalPages)
	assert.False(t, page.HasNext)
	assert.True(t, page.HasPrev)

	empty := NewPage[int](nil, 1, 10, 0)
	assert.Equal(t, 0, empty.TotalPages)
	assert.NotNil(t, empty.Items)
	assert.False(t, empty.HasNext)
	assert.False(t, empty.HasPrev)

	exact := NewPage([]int{}, 1, 10, 20)
	assert.Equal(t, 2, exact.TotalPages)
	assert.True(t, exact.HasNext)
}

func TestProblemListPagination(t *testing.T) {
	repo := store.NewMemoryProblemRepository()
	seedProblems(t, repo, "alice", 25)
	seedProblems(t, repo, "bob", 3)
	svc := NewProblemService(repo, nil, nil, nil)

	page, err := svc.List(context.Background(), "alice", types.ProblemFilter{}, 3, 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)
	assert.Equal(t, 25, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 3, page.CurrentPage)
	assert.Equal(t, "Problem 4", page.Items[0].Title)

	page, err = svc.List(context.Background(), "alice", types.ProblemFilter{}, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, maxLimit, page.Limit)
	assert.Len(t, page.Items, 25)
}

func TestProblemOwnerIsolation(t *testing.T) {
	repo := store.NewMemoryProblemRepository()
	alice := seedProblems(t, repo, "alice", 1)[0]
	svc := NewProblemService(repo, nil, nil, nil)

	_, err := svc.Get(context.Background(), "bob", alice.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.Status(context.Background(), "bob", alice.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.ToggleFavorite(context.Background(), "bob", alice.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), "bob", alice.ID), store.ErrNotFound)

	got, err := svc.Get(context.Background(), "alice", alice.ID)
	require.NoError(t, err)
	assert.False(t, got.IsFavorited)
}

func TestProblemStatusWhileRunning(t *testing.T) {
	repo := store.NewMemoryProblemRepository()
	p := seedProblems(t, repo, "alice", 1)[0]
	svc := NewProblemService(repo, nil, nil, nil)

	status, err := svc.Status(context.Background(), "alice", p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, status.ID)
	assert.Equal(t, types.StatusRunning, status.Status)
	assert.Nil(t, status.ValidationReport)
	assert.NotNil(t, status.TestCases)
}

func TestToggleFavoriteTwiceRestores(t *testing.T) {
	repo := store.NewMemoryProblemRepository()
	p := seedProblems(t, repo, "alice", 1)[0]
	svc := NewProblemService(repo, nil, nil, nil)

	first, err := svc.ToggleFavorite(context.Background(), "alice", p.ID)
	require.NoError(t, err)
	assert.True(t, first.IsFavorited)

	favorites, err := svc.List(context.Background(), "alice", types.ProblemFilter{FavoritesOnly: true}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, favorites.Total)

	second, err := svc.ToggleFavorite(context.Background(), "alice", p.ID)
	require.NoError(t, err)
	assert.False(t, second.IsFavorited)
}

type fakeCreator struct {
	owner string
	req   pipeline.CreateRequest
}

func (f *fakeCreator) Create(_ context.Context, owner string, req pipeline.CreateRequest) (types.Problem, error) {
	f.owner, f.req = owner, req
	return types.Problem{ID: "new", UserID: owner, ValidationStatus: types.StatusRunning}, nil
}

func TestProblemCreateDelegates(t *testing.T) {
	creator := &fakeCreator{}
	svc := NewProblemService(store.NewMemoryProblemRepository(), creator, nil, nil)

	p, err := svc.Create(context.Background(), "alice", pipeline.CreateRequest{Topics: []string{"dp"}, Rating: "1500"})
	require.NoError(t, err)
	assert.Equal(t, "new", p.ID)
	assert.Equal(t, "alice", creator.owner)
	assert.Equal(t, []string{"dp"}, creator.req.Topics)
}

func TestProblemDeleteRemovesTestcaseSet(t *testing.T) {
	problems := store.NewMemoryProblemRepository()
	sets := store.NewMemoryTestcaseRepository()
	p := seedProblems(t, problems, "alice", 1)[0]
	_, err := sets.Create(context.Background(), types.TestcaseSet{ID: "s1", ProblemID: p.ID, UserID: "alice"})
	require.NoError(t, err)

	testcases := NewTestcaseService(problems, sets, nil, nil, nil)
	svc := NewProblemService(problems, nil, testcases, nil)

	require.NoError(t, svc.Delete(context.Background(), "alice", p.ID))
	_, err = sets.Get(context.Background(), p.ID, "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)

	other := seedProblems(t, problems, "alice", 1)[0]
	require.NoError(t, svc.Delete(context.Background(), "alice", other.ID), "a problem without a set deletes cleanly")
}
