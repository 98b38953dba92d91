package store

import (
	"context"
	"errors"
	"time"

	"github.com/jjudge-oj/problemgen/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoProblemRepository stores problems as documents keyed by their id.
type MongoProblemRepository struct {
	col *mongo.Collection
}

func NewMongoProblemRepository(db *mongo.Database) *MongoProblemRepository {
	return &MongoProblemRepository{col: db.Collection(problemsCollection)}
}

func (r *MongoProblemRepository) List(ctx context.Context, owner string, filter types.ProblemFilter, offset, limit int) ([]types.Problem, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}

	query := bson.D{{Key: "userId", Value: owner}}
	if filter.FavoritesOnly {
		query = append(query, bson.E{Key: "isFavorited", Value: true})
	}
	if filter.Status != "" {
		query = append(query, bson.E{Key: "validationStatus", Value: filter.Status})
	}

	total, err := r.col.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cur, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	problems := make([]types.Problem, 0, limit)
	if err := cur.All(ctx, &problems); err != nil {
		return nil, 0, err
	}
	for i := range problems {
		types.NormalizeProblem(&problems[i])
	}
	return problems, int(total), nil
}

func (r *MongoProblemRepository) Get(ctx context.Context, id, owner string) (types.Problem, error) {
	var problem types.Problem
	err := r.col.FindOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "userId", Value: owner}}).Decode(&problem)
	if err != nil {
		return types.Problem{}, mongoNotFound(err)
	}
	types.NormalizeProblem(&problem)
	return problem, nil
}

func (r *MongoProblemRepository) Create(ctx context.Context, problem types.Problem) (types.Problem, error) {
	now := time.Now().UTC()
	problem.CreatedAt = now
	problem.UpdatedAt = now
	if problem.GeneratedAt.IsZero() {
		problem.GeneratedAt = now
	}
	types.NormalizeProblem(&problem)

	if _, err := r.col.InsertOne(ctx, problem); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.Problem{}, ErrConflict
		}
		return types.Problem{}, err
	}
	return problem, nil
}

func (r *MongoProblemRepository) UpdateFields(ctx context.Context, id string, update types.ProblemUpdate) (types.Problem, error) {
	set := bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}
	if update.ValidationStatus != nil {
		set = append(set, bson.E{Key: "validationStatus", Value: *update.ValidationStatus})
	}
	if update.TestCases != nil {
		testCases := *update.TestCases
		if testCases == nil {
			testCases = []types.TestCase{}
		}
		set = append(set, bson.E{Key: "testCases", Value: testCases})
	}
	if update.ValidationReport != nil {
		report := *update.ValidationReport
		types.NormalizeReport(&report)
		set = append(set, bson.E{Key: "validationReport", Value: report})
	}
	if update.IsFavorited != nil {
		set = append(set, bson.E{Key: "isFavorited", Value: *update.IsFavorited})
	}

	filter := bson.D{{Key: "_id", Value: id}}
	if update.ExpectStatus != nil {
		filter = append(filter, bson.E{Key: "validationStatus", Value: string(*update.ExpectStatus)})
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var problem types.Problem
	err := r.col.FindOneAndUpdate(ctx, filter, bson.D{{Key: "$set", Value: set}}, opts).Decode(&problem)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) && update.ExpectStatus != nil {
			return types.Problem{}, r.missingOrSettled(ctx, id)
		}
		return types.Problem{}, mongoNotFound(err)
	}
	types.NormalizeProblem(&problem)
	return problem, nil
}

// missingOrSettled explains a conditional update that matched nothing.
func (r *MongoProblemRepository) missingOrSettled(ctx context.Context, id string) error {
	n, err := r.col.CountDocuments(ctx, bson.D{{Key: "_id", Value: id}}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrStatusMismatch
	}
	return ErrNotFound
}

// ToggleFavorite negates isFavorited server-side with an update pipeline.
func (r *MongoProblemRepository) ToggleFavorite(ctx context.Context, id, owner string) (types.Problem, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "isFavorited", Value: bson.D{{Key: "$not", Value: bson.A{"$isFavorited"}}}},
			{Key: "updatedAt", Value: time.Now().UTC()},
		}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var problem types.Problem
	err := r.col.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id}, {Key: "userId", Value: owner}}, pipeline, opts).Decode(&problem)
	if err != nil {
		return types.Problem{}, mongoNotFound(err)
	}
	types.NormalizeProblem(&problem)
	return problem, nil
}

func (r *MongoProblemRepository) Delete(ctx context.Context, id, owner string) error {
	res, err := r.col.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "userId", Value: owner}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoProblemRepository) FailStale(ctx context.Context, cutoff time.Time, report types.ValidationReport) (int, error) {
	types.NormalizeReport(&report)
	filter := bson.D{
		{Key: "validationStatus", Value: types.StatusRunning},
		{Key: "updatedAt", Value: bson.D{{Key: "$lt", Value: cutoff}}},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "validationStatus", Value: types.StatusFailed},
		{Key: "validationReport", Value: report},
		{Key: "updatedAt", Value: time.Now().UTC()},
	}}}
	res, err := r.col.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

func (r *MongoProblemRepository) Ping(ctx context.Context) error {
	return r.col.Database().Client().Ping(ctx, nil)
}
