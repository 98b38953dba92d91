package store

import (
	"context"
	"time"

	"github.com/jjudge-oj/problemgen/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoTestcaseRepository stores one testcase set document per problem and owner.
type MongoTestcaseRepository struct {
	col *mongo.Collection
}

func NewMongoTestcaseRepository(db *mongo.Database) *MongoTestcaseRepository {
	return &MongoTestcaseRepository{col: db.Collection(testcasesCollection)}
}

func (r *MongoTestcaseRepository) Get(ctx context.Context, problemID, owner string) (types.TestcaseSet, error) {
	var set types.TestcaseSet
	err := r.col.FindOne(ctx, bson.D{{Key: "problemId", Value: problemID}, {Key: "userId", Value: owner}}).Decode(&set)
	if err != nil {
		return types.TestcaseSet{}, mongoNotFound(err)
	}
	if set.Testcases == nil {
		set.Testcases = []types.GeneratedTestcase{}
	}
	return set, nil
}

func (r *MongoTestcaseRepository) Create(ctx context.Context, set types.TestcaseSet) (types.TestcaseSet, error) {
	now := time.Now().UTC()
	set.CreatedAt = now
	set.UpdatedAt = now
	if set.GeneratedAt.IsZero() {
		set.GeneratedAt = now
	}
	if set.Testcases == nil {
		set.Testcases = []types.GeneratedTestcase{}
	}
	if _, err := r.col.InsertOne(ctx, set); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.TestcaseSet{}, ErrConflict
		}
		return types.TestcaseSet{}, err
	}
	return set, nil
}

func (r *MongoTestcaseRepository) Replace(ctx context.Context, set types.TestcaseSet) (types.TestcaseSet, error) {
	now := time.Now().UTC()
	if set.GeneratedAt.IsZero() {
		set.GeneratedAt = now
	}
	if set.Testcases == nil {
		set.Testcases = []types.GeneratedTestcase{}
	}

	filter := bson.D{{Key: "problemId", Value: set.ProblemID}, {Key: "userId", Value: set.UserID}}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "testcases", Value: set.Testcases},
			{Key: "archiveKey", Value: set.ArchiveKey},
			{Key: "archiveSha256", Value: set.ArchiveSHA256},
			{Key: "generatedAt", Value: set.GeneratedAt},
			{Key: "updatedAt", Value: now},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "_id", Value: set.ID},
			{Key: "createdAt", Value: now},
		}},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out types.TestcaseSet
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		return types.TestcaseSet{}, err
	}
	if out.Testcases == nil {
		out.Testcases = []types.GeneratedTestcase{}
	}
	return out, nil
}

func (r *MongoTestcaseRepository) Delete(ctx context.Context, problemID, owner string) error {
	res, err := r.col.DeleteOne(ctx, bson.D{{Key: "problemId", Value: problemID}, {Key: "userId", Value: owner}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
