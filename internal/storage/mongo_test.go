package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/IshaanNene/kitmanual/internal/catalog"
)

func TestMongoFilter(t *testing.T) {
	assert.Equal(t, bson.D{}, mongoFilter(catalog.Query{}))

	got := mongoFilter(catalog.Query{
		OnlyMissing: true,
		Grades:      []string{"mg", "RG"},
		IDs:         []int64{7},
		Keyword:     "zaku (ver.2)",
	})

	want := bson.D{{Key: "$and", Value: bson.A{
		bson.M{"pdf_local_path": bson.M{"$in": bson.A{nil, ""}}},
		bson.M{"grade": bson.M{"$in": bson.A{"MG", "RG"}}},
		bson.M{"_id": bson.M{"$in": bson.A{int64(7)}}},
		bson.M{"$or": bson.A{
			bson.M{"name_native": primitive.Regex{Pattern: `zaku \(ver\.2\)`, Options: "i"}},
			bson.M{"name_foreign": primitive.Regex{Pattern: `zaku \(ver\.2\)`, Options: "i"}},
		}},
	}}}
	assert.Equal(t, want, got)
}

func TestMongoFilterNotUploaded(t *testing.T) {
	got := mongoFilter(catalog.Query{NotUploaded: true})
	want := bson.D{{Key: "$and", Value: bson.A{
		bson.M{"pdf_local_path": bson.M{"$nin": bson.A{nil, ""}}},
		bson.M{"uploaded_at": nil},
	}}}
	assert.Equal(t, want, got)
}
