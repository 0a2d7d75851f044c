// Package catalog defines the manual catalog record and the store contract
// shared by the crawler, the download orchestrator and the lookup API.
package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get when no record has the requested id.
var ErrNotFound = errors.New("manual not found")

// Record is one manual discovered on the catalog site.
type Record struct {
	ID              int64      `db:"id"                json:"id"                bson:"_id"`
	DetailPath      string     `db:"detail_path"       json:"detail_path"       bson:"detail_path"`
	DetailURL       string     `db:"detail_url"        json:"detail_url"        bson:"detail_url"`
	PDFURL          string     `db:"pdf_url"           json:"pdf_url"           bson:"pdf_url"`
	NameNative      *string    `db:"name_native"       json:"name_native"       bson:"name_native,omitempty"`
	NameForeign     *string    `db:"name_foreign"      json:"name_foreign"      bson:"name_foreign,omitempty"`
	Grade           *string    `db:"grade"             json:"grade"             bson:"grade,omitempty"`
	ReleaseDate     *time.Time `db:"release_date"      json:"release_date"      bson:"release_date,omitempty"`
	ReleaseDateText string     `db:"release_date_text" json:"release_date_text" bson:"release_date_text"`
	ImageURL        *string    `db:"image_url"         json:"image_url"         bson:"image_url,omitempty"`
	LocalPath       *string    `db:"pdf_local_path"    json:"pdf_local_path"    bson:"pdf_local_path,omitempty"`

	StorageBucket *string    `db:"storage_bucket" json:"storage_bucket,omitempty" bson:"storage_bucket,omitempty"`
	StoragePath   *string    `db:"storage_path"   json:"storage_path,omitempty"   bson:"storage_path,omitempty"`
	PublicURL     *string    `db:"public_url"     json:"public_url,omitempty"     bson:"public_url,omitempty"`
	StorageSize   *int64     `db:"storage_size"   json:"storage_size,omitempty"   bson:"storage_size,omitempty"`
	UploadedAt    *time.Time `db:"uploaded_at"    json:"uploaded_at,omitempty"    bson:"uploaded_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at" bson:"updated_at"`
}

// DisplayName returns the foreign name when present, else the native name.
func (r *Record) DisplayName() string {
	if r.NameForeign != nil && *r.NameForeign != "" {
		return *r.NameForeign
	}
	if r.NameNative != nil {
		return *r.NameNative
	}
	return ""
}

// HasLocalPath reports whether a download location has been recorded.
func (r *Record) HasLocalPath() bool {
	return r.LocalPath != nil && *r.LocalPath != ""
}

// GradeCode returns the grade or "" when unclassified.
func (r *Record) GradeCode() string {
	if r.Grade == nil {
		return ""
	}
	return *r.Grade
}

// UploadInfo describes where a manual's PDF was published.
type UploadInfo struct {
	Bucket     string
	Path       string
	PublicURL  string
	Size       int64
	UploadedAt time.Time
}

// Query selects records from a Store.
type Query struct {
	// OnlyMissing keeps records without a recorded local path.
	OnlyMissing bool
	// NotUploaded keeps downloaded records that have no upload yet.
	NotUploaded bool
	Grades      []string
	IDs         []int64
	// Keyword matches either name, case-insensitively.
	Keyword string
	Limit   int
	Offset  int
}

// Store persists catalog records. Implementations acquire and release
// their connection per call and must be safe for concurrent use.
type Store interface {
	// Upsert inserts the record or overwrites its catalog fields in place.
	// It never touches the local path or upload columns.
	Upsert(ctx context.Context, rec *Record) error
	SetLocalPath(ctx context.Context, id int64, relPath string) error
	SetUpload(ctx context.Context, id int64, info UploadInfo) error
	Get(ctx context.Context, id int64) (*Record, error)
	List(ctx context.Context, q Query) ([]Record, error)
	Close() error
	Name() string
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
