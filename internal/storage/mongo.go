package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/kitmanual/internal/catalog"
	"github.com/IshaanNene/kitmanual/internal/types"
)

// MongoStore implements catalog.Store on a MongoDB collection keyed by the
// manual id (_id).
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	now        func() time.Time
	logger     *slog.Logger
}

// NewMongoStore connects, pings and ensures the pdf_url unique index.
func NewMongoStore(ctx context.Context, uri, database, collection string, logger *slog.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "pdf_url", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb create index: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: coll,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With("component", "mongo_store"),
	}, nil
}

func (s *MongoStore) Name() string { return "mongodb" }

func (s *MongoStore) Upsert(ctx context.Context, rec *catalog.Record) error {
	now := s.now()
	update := bson.M{
		"$set": bson.M{
			"detail_path":       rec.DetailPath,
			"detail_url":        rec.DetailURL,
			"pdf_url":           rec.PDFURL,
			"name_native":       rec.NameNative,
			"name_foreign":      rec.NameForeign,
			"grade":             rec.Grade,
			"release_date":      rec.ReleaseDate,
			"release_date_text": rec.ReleaseDateText,
			"image_url":         rec.ImageURL,
			"updated_at":        now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": rec.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Op: "upsert", Err: err}
	}
	return nil
}

func (s *MongoStore) SetLocalPath(ctx context.Context, id int64, relPath string) error {
	return s.updateFields(ctx, "set_local_path", id, bson.M{
		"pdf_local_path": relPath,
		"updated_at":     s.now(),
	})
}

func (s *MongoStore) SetUpload(ctx context.Context, id int64, info catalog.UploadInfo) error {
	return s.updateFields(ctx, "set_upload", id, bson.M{
		"storage_bucket": info.Bucket,
		"storage_path":   info.Path,
		"public_url":     info.PublicURL,
		"storage_size":   info.Size,
		"uploaded_at":    info.UploadedAt.UTC(),
		"updated_at":     s.now(),
	})
}

func (s *MongoStore) updateFields(ctx context.Context, op string, id int64, fields bson.M) error {
	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Op: op, Err: err}
	}
	if res.MatchedCount == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id int64) (*catalog.Record, error) {
	var rec catalog.Record
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, &types.StorageError{Backend: s.Name(), Op: "get", Err: err}
	}
	return &rec, nil
}

func (s *MongoStore) List(ctx context.Context, q catalog.Query) ([]catalog.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}

	cursor, err := s.collection.Find(ctx, mongoFilter(q), opts)
	if err != nil {
		return nil, &types.StorageError{Backend: s.Name(), Op: "list", Err: err}
	}
	var recs []catalog.Record
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, &types.StorageError{Backend: s.Name(), Op: "list", Err: err}
	}
	return recs, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// mongoFilter mirrors catalog.Query.Match as a server-side filter.
func mongoFilter(q catalog.Query) bson.D {
	var conds bson.A

	missing := bson.A{nil, ""}
	if q.OnlyMissing {
		conds = append(conds, bson.M{"pdf_local_path": bson.M{"$in": missing}})
	}
	if q.NotUploaded {
		conds = append(conds,
			bson.M{"pdf_local_path": bson.M{"$nin": missing}},
			bson.M{"uploaded_at": nil},
		)
	}
	if len(q.Grades) > 0 {
		grades := make(bson.A, len(q.Grades))
		for i, g := range q.Grades {
			grades[i] = strings.ToUpper(g)
		}
		conds = append(conds, bson.M{"grade": bson.M{"$in": grades}})
	}
	if len(q.IDs) > 0 {
		ids := make(bson.A, len(q.IDs))
		for i, id := range q.IDs {
			ids[i] = id
		}
		conds = append(conds, bson.M{"_id": bson.M{"$in": ids}})
	}
	if q.Keyword != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(q.Keyword), Options: "i"}
		conds = append(conds, bson.M{"$or": bson.A{
			bson.M{"name_native": re},
			bson.M{"name_foreign": re},
		}})
	}

	if len(conds) == 0 {
		return bson.D{}
	}
	return bson.D{{Key: "$and", Value: conds}}
}
