package store

import (
	"context"
	"time"

	"github.com/jjudge-oj/problemgen/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type MongoUserRepository struct {
	col *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{col: db.Collection(usersCollection)}
}

func (r *MongoUserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	var user types.User
	if err := r.col.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&user); err != nil {
		return types.User{}, mongoNotFound(err)
	}
	return user, nil
}

func (r *MongoUserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	var user types.User
	if err := r.col.FindOne(ctx, bson.D{{Key: "username", Value: username}}).Decode(&user); err != nil {
		return types.User{}, mongoNotFound(err)
	}
	return user, nil
}

func (r *MongoUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	if _, err := r.col.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	return user, nil
}
