package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/sbilibin2017/user-bootstrap/internal/logger"
	"github.com/sbilibin2017/user-bootstrap/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserMongoRepository manages the User collection in MongoDB.
type UserMongoRepository struct {
	db   *mongo.Database
	coll *mongo.Collection
}

func NewUserMongoRepository(db *mongo.Database, collection string) *UserMongoRepository {
	return &UserMongoRepository{db: db, coll: db.Collection(collection)}
}

// EnsureCollection creates the collection unless it is already listed.
func (r *UserMongoRepository) EnsureCollection(ctx context.Context) error {
	names, err := r.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: r.coll.Name()}})
	if err != nil {
		logger.Log.Errorw("failed to list collections", "collection", r.coll.Name(), "error", err)
		return err
	}
	if len(names) > 0 {
		return nil
	}

	err = r.db.CreateCollection(ctx, r.coll.Name())
	logger.Log.Infow("mongo command", "command", "createCollection", "collection", r.coll.Name(), "error", err)

	// A concurrent bootstrap may have won the race.
	if err != nil && isNamespaceExists(err) {
		return nil
	}
	return err
}

// EnsureIndexes creates the given ascending indexes. Creating an index that
// already exists with the same definition is a no-op on the server.
func (r *UserMongoRepository) EnsureIndexes(ctx context.Context, specs []models.IndexSpec) ([]string, error) {
	indexModels := make([]mongo.IndexModel, 0, len(specs))
	for _, spec := range specs {
		keys := bson.D{}
		for _, field := range spec.Fields {
			keys = append(keys, bson.E{Key: field, Value: 1})
		}
		opts := options.Index().SetName(spec.Name())
		if spec.Unique {
			opts.SetUnique(true)
		}
		indexModels = append(indexModels, mongo.IndexModel{Keys: keys, Options: opts})
	}

	names, err := r.coll.Indexes().CreateMany(ctx, indexModels)

	logger.Log.Infow(
		"mongo command",
		"command", "createIndexes",
		"collection", r.coll.Name(),
		"result", names,
		"error", err,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return names, nil
}

// ExistsByUsernameOrEmail reports whether any user has the username or the email.
func (r *UserMongoRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "username", Value: username}},
		bson.D{{Key: "email", Value: email}},
	}}}

	count, err := r.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))

	logger.Log.Infow(
		"mongo command",
		"command", "count",
		"filter", filter,
		"result", count,
		"error", err,
	)

	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Insert stores the user. A unique index violation yields models.ErrDuplicateUser.
func (r *UserMongoRepository) Insert(ctx context.Context, user *models.User) error {
	res, err := r.coll.InsertOne(ctx, user)

	var insertedID any
	if res != nil {
		insertedID = res.InsertedID
	}
	logger.Log.Infow(
		"mongo command",
		"command", "insert",
		"username", user.Username,
		"email", user.Email,
		"result", insertedID,
		"error", err,
	)

	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", models.ErrDuplicateUser, err)
		}
		return err
	}
	return nil
}

// FindRolesByUsername returns the roles granted to the user.
func (r *UserMongoRepository) FindRolesByUsername(ctx context.Context, username string) ([]string, error) {
	filter := bson.D{{Key: "username", Value: username}}
	opts := options.FindOne().SetProjection(bson.D{{Key: "roles", Value: 1}})

	var doc struct {
		Roles []string `bson:"roles"`
	}
	err := r.coll.FindOne(ctx, filter, opts).Decode(&doc)

	logger.Log.Infow(
		"mongo command",
		"command", "find",
		"filter", filter,
		"result", doc.Roles,
		"error", err,
	)

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.Roles, nil
}

type mongoIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique bool   `bson:"unique"`
}

// ListIndexes returns every index of the collection, including _id_.
func (r *UserMongoRepository) ListIndexes(ctx context.Context) ([]models.IndexInfo, error) {
	cursor, err := r.coll.Indexes().List(ctx)
	if err != nil {
		logger.Log.Errorw("failed to list indexes", "collection", r.coll.Name(), "error", err)
		return nil, err
	}
	defer cursor.Close(ctx)

	var raw []mongoIndex
	if err := cursor.All(ctx, &raw); err != nil {
		logger.Log.Errorw("failed to decode indexes", "collection", r.coll.Name(), "error", err)
		return nil, err
	}

	indexes := make([]models.IndexInfo, 0, len(raw))
	for _, idx := range raw {
		info := models.IndexInfo{Name: idx.Name, Unique: idx.Unique}
		for _, e := range idx.Key {
			info.Keys = append(info.Keys, models.IndexKey{Field: e.Key, Direction: keyDirection(e.Value)})
		}
		indexes = append(indexes, info)
	}

	logger.Log.Infow(
		"mongo command",
		"command", "listIndexes",
		"collection", r.coll.Name(),
		"result", len(indexes),
	)

	return indexes, nil
}

type mongoCollStats struct {
	Ns             string `bson:"ns"`
	Count          int64  `bson:"count"`
	Size           int64  `bson:"size"`
	StorageSize    int64  `bson:"storageSize"`
	TotalIndexSize int64  `bson:"totalIndexSize"`
	NIndexes       int64  `bson:"nindexes"`
}

// Stats runs collStats against the collection.
func (r *UserMongoRepository) Stats(ctx context.Context) (*models.CollectionStats, error) {
	cmd := bson.D{{Key: "collStats", Value: r.coll.Name()}}

	var raw mongoCollStats
	err := r.db.RunCommand(ctx, cmd).Decode(&raw)

	logger.Log.Infow(
		"mongo command",
		"command", "collStats",
		"collection", r.coll.Name(),
		"result", raw,
		"error", err,
	)

	if err != nil {
		return nil, err
	}

	return &models.CollectionStats{
		Namespace:      raw.Ns,
		Count:          raw.Count,
		Size:           raw.Size,
		StorageSize:    raw.StorageSize,
		TotalIndexSize: raw.TotalIndexSize,
		IndexCount:     raw.NIndexes,
	}, nil
}

// keyDirection normalizes the numeric index direction the server returns as
// int32, int64 or double.
func keyDirection(v any) int {
	switch d := v.(type) {
	case int32:
		return int(d)
	case int64:
		return int(d)
	case float64:
		return int(d)
	default:
		return 0
	}
}

func isNamespaceExists(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Name == "NamespaceExists" || cmdErr.Code == 48
	}
	return false
}
