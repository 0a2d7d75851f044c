package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/IshaanNene/kitmanual/internal/catalog"
	"github.com/IshaanNene/kitmanual/internal/types"
)

// driverNames maps configured database drivers to database/sql driver names.
var driverNames = map[string]string{
	"postgres": "pgx",
	"sqlite":   "sqlite3",
}

// SQLStore implements catalog.Store on PostgreSQL or SQLite via sqlx.
// Each call checks a connection out of the pool and returns it when done.
type SQLStore struct {
	db     *sqlx.DB
	driver string
	now    func() time.Time
	logger *slog.Logger
}

// OpenSQL connects to the database, applies the schema and returns a store.
func OpenSQL(ctx context.Context, driver, dsn string, maxOpenConns int, logger *slog.Logger) (*SQLStore, error) {
	driverName, ok := driverNames[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver: %s", driver)
	}

	if driver == "sqlite" {
		if dir := filepath.Dir(sqlitePath(dsn)); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("ensure data dir: %w", err)
			}
		}
		dsn = withSQLiteDefaults(dsn)
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlx.Open(%s) > %w", driverName, err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	store := NewSQLStore(db, driver, logger)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sqlx.DB, driver string, logger *slog.Logger) *SQLStore {
	return &SQLStore{
		db:     db,
		driver: driver,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With("component", "sql_store", "driver", driver),
	}
}

func (s *SQLStore) Name() string { return s.driver }

// Migrate applies the schema. Statements are idempotent.
func (s *SQLStore) Migrate(ctx context.Context) error {
	return s.withConn(ctx, "migrate", func(conn *sqlx.Conn) error {
		for _, stmt := range schemaStatements {
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLStore) Upsert(ctx context.Context, rec *catalog.Record) error {
	now := s.now()
	return s.withConn(ctx, "upsert", func(conn *sqlx.Conn) error {
		_, err := conn.ExecContext(ctx, s.db.Rebind(upsertSQL),
			rec.ID, rec.DetailPath, rec.DetailURL, rec.PDFURL,
			rec.NameNative, rec.NameForeign, rec.Grade,
			rec.ReleaseDate, rec.ReleaseDateText, rec.ImageURL,
			now, now,
		)
		if err != nil {
			return fmt.Errorf("conn.ExecContext(upsert %d) > %w", rec.ID, err)
		}
		return nil
	})
}

func (s *SQLStore) SetLocalPath(ctx context.Context, id int64, relPath string) error {
	return s.withConn(ctx, "set_local_path", func(conn *sqlx.Conn) error {
		res, err := conn.ExecContext(ctx, s.db.Rebind(setLocalPathSQL), relPath, s.now(), id)
		if err != nil {
			return fmt.Errorf("conn.ExecContext(set local path %d) > %w", id, err)
		}
		return requireRow(res)
	})
}

func (s *SQLStore) SetUpload(ctx context.Context, id int64, info catalog.UploadInfo) error {
	return s.withConn(ctx, "set_upload", func(conn *sqlx.Conn) error {
		res, err := conn.ExecContext(ctx, s.db.Rebind(setUploadSQL),
			info.Bucket, info.Path, info.PublicURL, info.Size, info.UploadedAt.UTC(), s.now(), id)
		if err != nil {
			return fmt.Errorf("conn.ExecContext(set upload %d) > %w", id, err)
		}
		return requireRow(res)
	})
}

func (s *SQLStore) Get(ctx context.Context, id int64) (*catalog.Record, error) {
	var rec catalog.Record
	err := s.withConn(ctx, "get", func(conn *sqlx.Conn) error {
		query := s.db.Rebind(`SELECT ` + manualColumns + ` FROM manuals WHERE id = ?`)
		return conn.GetContext(ctx, &rec, query, id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLStore) List(ctx context.Context, q catalog.Query) ([]catalog.Record, error) {
	query, args, err := buildListQuery(q)
	if err != nil {
		return nil, &types.StorageError{Backend: s.Name(), Op: "list", Err: err}
	}
	var recs []catalog.Record
	err = s.withConn(ctx, "list", func(conn *sqlx.Conn) error {
		if err := conn.SelectContext(ctx, &recs, s.db.Rebind(query), args...); err != nil {
			return fmt.Errorf("conn.SelectContext(manuals) > %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// withConn scopes one unit of work to a single pooled connection.
func (s *SQLStore) withConn(ctx context.Context, op string, fn func(conn *sqlx.Conn) error) error {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Op: op, Err: err}
	}
	defer conn.Close()

	if err := fn(conn); err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, catalog.ErrNotFound) {
			return err
		}
		return &types.StorageError{Backend: s.Name(), Op: op, Err: err}
	}
	return nil
}

// buildListQuery renders q with "?" placeholders; callers rebind.
func buildListQuery(q catalog.Query) (string, []any, error) {
	var where []string
	var args []any

	if q.OnlyMissing {
		where = append(where, "(pdf_local_path IS NULL OR pdf_local_path = '')")
	}
	if q.NotUploaded {
		where = append(where, "(pdf_local_path IS NOT NULL AND pdf_local_path <> '' AND uploaded_at IS NULL)")
	}
	if len(q.Grades) > 0 {
		grades := make([]string, len(q.Grades))
		for i, g := range q.Grades {
			grades[i] = strings.ToUpper(g)
		}
		clause, inArgs, err := sqlx.In("UPPER(grade) IN (?)", grades)
		if err != nil {
			return "", nil, fmt.Errorf("sqlx.In(grades) > %w", err)
		}
		where = append(where, clause)
		args = append(args, inArgs...)
	}
	if len(q.IDs) > 0 {
		clause, inArgs, err := sqlx.In("id IN (?)", q.IDs)
		if err != nil {
			return "", nil, fmt.Errorf("sqlx.In(ids) > %w", err)
		}
		where = append(where, clause)
		args = append(args, inArgs...)
	}
	if q.Keyword != "" {
		pattern := "%" + strings.ToLower(q.Keyword) + "%"
		where = append(where, "(LOWER(name_native) LIKE ? OR LOWER(name_foreign) LIKE ?)")
		args = append(args, pattern, pattern)
	}

	var b strings.Builder
	b.WriteString("SELECT " + manualColumns + " FROM manuals")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY id")

	switch {
	case q.Limit > 0 && q.Offset > 0:
		b.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, q.Limit, q.Offset)
	case q.Limit > 0:
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	case q.Offset > 0:
		b.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, math.MaxInt32, q.Offset)
	}

	return b.String(), args, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// sqlitePath strips the "file:" scheme and query string from a DSN.
func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}

// withSQLiteDefaults enables WAL and a busy timeout so concurrent
// download workers can write path updates without SQLITE_BUSY.
func withSQLiteDefaults(dsn string) string {
	params := []string{}
	if !strings.Contains(dsn, "_busy_timeout") {
		params = append(params, "_busy_timeout=5000")
	}
	if !strings.Contains(dsn, "_journal_mode") {
		params = append(params, "_journal_mode=WAL")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}
