package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jjudge-oj/problemgen/internal/storage"
	"github.com/jjudge-oj/problemgen/internal/store"
	"github.com/jjudge-oj/problemgen/types"
	"go.uber.org/zap"
)

// ErrArchiveUnavailable is returned when a set has no stored archive.
var ErrArchiveUnavailable = errors.New("testcase archive unavailable")

const archiveContentType = "application/gzip"

// TestcaseRepository defines persistence operations for testcase sets.
type TestcaseRepository interface {
	Get(ctx context.Context, problemID, owner string) (types.TestcaseSet, error)
	Create(ctx context.Context, set types.TestcaseSet) (types.TestcaseSet, error)
	Replace(ctx context.Context, set types.TestcaseSet) (types.TestcaseSet, error)
	Delete(ctx context.Context, problemID, owner string) error
}

// ProblemReader loads an owner's problem.
type ProblemReader interface {
	Get(ctx context.Context, id, owner string) (types.Problem, error)
}

// TestcaseGenerator produces categorized testcases for a problem.
type TestcaseGenerator interface {
	GenerateTestcases(ctx context.Context, problem types.Problem) ([]types.GeneratedTestcase, error)
}

// TestcaseService manages the testcase set kept per problem and owner,
// separately from the test cases embedded in the problem.
type TestcaseService struct {
	problems ProblemReader
	repo     TestcaseRepository
	gen      TestcaseGenerator
	storage  storage.ObjectStorage
	logger   *zap.Logger
	now      func() time.Time
}

// NewTestcaseService constructs the service. objects may be nil, in which
// case no archives are written.
func NewTestcaseService(problems ProblemReader, repo TestcaseRepository, gen TestcaseGenerator, objects storage.ObjectStorage, logger *zap.Logger) *TestcaseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TestcaseService{
		problems: problems,
		repo:     repo,
		gen:      gen,
		storage:  objects,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Generate returns the existing set, or generates and stores a new one.
// created reports whether a new set was stored.
func (s *TestcaseService) Generate(ctx context.Context, owner, problemID string) (set types.TestcaseSet, created bool, err error) {
	problem, err := s.problems.Get(ctx, problemID, owner)
	if err != nil {
		return types.TestcaseSet{}, false, err
	}

	existing, err := s.repo.Get(ctx, problemID, owner)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.TestcaseSet{}, false, err
	}

	set, err = s.build(ctx, problem)
	if err != nil {
		return types.TestcaseSet{}, false, err
	}
	stored, err := s.repo.Create(ctx, set)
	if errors.Is(err, store.ErrConflict) {
		// Lost a race with a concurrent request.
		existing, getErr := s.repo.Get(ctx, problemID, owner)
		if getErr != nil {
			return types.TestcaseSet{}, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return types.TestcaseSet{}, false, err
	}

	s.logger.Info("testcase set generated",
		zap.String("problem_id", problemID),
		zap.String("owner", owner),
		zap.Int("count", len(stored.Testcases)),
	)
	return stored, true, nil
}

// Regenerate generates a fresh set and replaces any existing one.
func (s *TestcaseService) Regenerate(ctx context.Context, owner, problemID string) (types.TestcaseSet, error) {
	problem, err := s.problems.Get(ctx, problemID, owner)
	if err != nil {
		return types.TestcaseSet{}, err
	}
	set, err := s.build(ctx, problem)
	if err != nil {
		return types.TestcaseSet{}, err
	}
	stored, err := s.repo.Replace(ctx, set)
	if err != nil {
		return types.TestcaseSet{}, err
	}
	s.logger.Info("testcase set regenerated",
		zap.String("problem_id", problemID),
		zap.String("owner", owner),
		zap.Int("count", len(stored.Testcases)),
	)
	return stored, nil
}

func (s *TestcaseService) Get(ctx context.Context, owner, problemID string) (types.TestcaseSet, error) {
	return s.repo.Get(ctx, problemID, owner)
}

// Delete removes the set and its archive.
func (s *TestcaseService) Delete(ctx context.Context, owner, problemID string) error {
	set, err := s.repo.Get(ctx, problemID, owner)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, problemID, owner); err != nil {
		return err
	}
	if s.storage != nil && set.ArchiveKey != "" {
		if err := s.storage.Delete(ctx, set.ArchiveKey); err != nil {
			s.logger.Warn("failed to delete testcase archive",
				zap.String("key", set.ArchiveKey),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Archive opens the stored tar.gz of a set. The caller closes the reader.
func (s *TestcaseService) Archive(ctx context.Context, owner, problemID string) (io.ReadCloser, types.TestcaseSet, error) {
	set, err := s.repo.Get(ctx, problemID, owner)
	if err != nil {
		return nil, types.TestcaseSet{}, err
	}
	if s.storage == nil || set.ArchiveKey == "" {
		return nil, types.TestcaseSet{}, ErrArchiveUnavailable
	}
	rc, err := s.storage.Get(ctx, set.ArchiveKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, types.TestcaseSet{}, ErrArchiveUnavailable
		}
		return nil, types.TestcaseSet{}, err
	}
	return rc, set, nil
}

func (s *TestcaseService) build(ctx context.Context, problem types.Problem) (types.TestcaseSet, error) {
	cases, err := s.gen.GenerateTestcases(ctx, problem)
	if err != nil {
		return types.TestcaseSet{}, fmt.Errorf("generate testcases: %w", err)
	}
	set := types.TestcaseSet{
		ID:          uuid.NewString(),
		ProblemID:   problem.ID,
		UserID:      problem.UserID,
		Testcases:   cases,
		GeneratedAt: s.now(),
	}
	s.upload(ctx, &set)
	return set, nil
}

// upload stores the archive when storage is configured. Failures are logged
// and leave the set without an archive.
func (s *TestcaseService) upload(ctx context.Context, set *types.TestcaseSet) {
	if s.storage == nil {
		return
	}
	data, sum, err := BuildArchive(set.Testcases)
	if err != nil {
		s.logger.Warn("failed to build testcase archive", zap.String("problem_id", set.ProblemID), zap.Error(err))
		return
	}
	key := ArchiveKey(set.UserID, set.ProblemID)
	err = s.storage.Put(ctx, storage.Object{
		Key:         key,
		Body:        bytes.NewReader(data),
		Size:        int64(len(data)),
		ContentType: archiveContentType,
		Metadata:    map[string]string{"sha256": sum, "problem-id": set.ProblemID},
	})
	if err != nil {
		s.logger.Warn("failed to upload testcase archive", zap.String("key", key), zap.Error(err))
		return
	}
	set.ArchiveKey = key
	set.ArchiveSHA256 = sum
}

// ArchiveKey is the object key of the archive for a problem and owner.
func ArchiveKey(owner, problemID string) string {
	return fmt.Sprintf("testcases/%s/%s.tar.gz", owner, problemID)
}
